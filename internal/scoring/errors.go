package scoring

import "fmt"

// ConfigError reports a malformed weight, threshold or override table.
// Engines return it from their constructors; it never surfaces at
// evaluation time.
type ConfigError struct {
	Engine  string
	Field   string
	Problem string
}

func (e *ConfigError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Problem)
	}
	return fmt.Sprintf("invalid %s config: %s: %s", e.Engine, e.Field, e.Problem)
}
