package scoring

// Signal is what a factor evaluator emits: a named observation, without a
// weight. Weights are attached by the engine's WeightTable.
type Signal struct {
	Name      string
	Triggered bool
	Reason    string

	// Degraded marks a signal resolved to its safe default because a
	// collaborator could not be reached.
	Degraded bool
}

// Factor captures one factor's contribution to the total score.
type Factor struct {
	Name      string  `json:"name"`
	Triggered bool    `json:"triggered"`
	Weight    float64 `json:"weight"`
	Reason    string  `json:"reason,omitempty"`
	Degraded  bool    `json:"degraded,omitempty"`
}

// Hit returns a triggered signal.
func Hit(name, reason string) Signal {
	return Signal{Name: name, Triggered: true, Reason: reason}
}

// Miss returns a signal that did not trigger.
func Miss(name string) Signal {
	return Signal{Name: name}
}

// Degrade returns a signal resolved to a safe default. reason must say which
// default was chosen so it survives into the decision record.
func Degrade(name string, triggered bool, reason string) Signal {
	return Signal{Name: name, Triggered: triggered, Reason: reason, Degraded: true}
}

// Triggered returns the names of triggered factors, in input order.
func Triggered(factors []Factor) []string {
	var names []string
	for _, f := range factors {
		if f.Triggered {
			names = append(names, f.Name)
		}
	}
	return names
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
