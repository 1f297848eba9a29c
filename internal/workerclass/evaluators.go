package workerclass

import (
	"context"
	"strings"

	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/scoring"
)

func flag(name string, on bool, reason string) scoring.Signal {
	if on {
		return scoring.Hit(name, reason)
	}
	return scoring.Miss(name)
}

func contractorEvaluator(cfg Config) engine.Evaluator[Engagement] {
	return engine.EvaluatorFunc("contractor_indicators", contractorFactors, func(_ context.Context, g Engagement) []scoring.Signal {
		pay := strings.ToLower(strings.TrimSpace(g.PayBasis))
		return []scoring.Signal{
			flag(FactorOwnSchedule, g.SetsOwnSchedule, "worker sets own schedule"),
			flag(FactorOwnTools, g.UsesOwnTools, "worker uses own tools"),
			flag(FactorMultipleClients, g.ClientCount >= 2, "worker serves multiple clients"),
			flag(FactorProjectPay, pay == "project" || pay == "fixed", "paid per project"),
			flag(FactorSubcontract, g.CanSubcontract, "worker may subcontract"),
			flag(FactorBusinessEntity, g.HasBusinessEntity, "worker operates own business entity"),
			flag(FactorShortEngagement, g.DurationDays > 0 && g.DurationDays < cfg.ShortEngagementDays, "short engagement"),
		}
	})
}

func employeeEvaluator(cfg Config) engine.Evaluator[Engagement] {
	return engine.EvaluatorFunc("employee_indicators", employeeFactors, func(_ context.Context, g Engagement) []scoring.Signal {
		pay := strings.ToLower(strings.TrimSpace(g.PayBasis))
		return []scoring.Signal{
			flag(FactorRequiredHours, g.RequiredHours, "client sets required hours"),
			flag(FactorTraining, g.ProvidesTraining, "client provides training"),
			flag(FactorExclusive, g.Exclusive, "work is exclusive to one client"),
			flag(FactorHourlyPay, pay == "hourly" || pay == "salary", "paid hourly or salaried"),
			flag(FactorLongTerm, g.DurationDays >= cfg.LongTermDays, "long-term engagement"),
			flag(FactorIntegral, g.IntegralToBusiness, "work is integral to the client's business"),
			flag(FactorCompanyEquipment, g.CompanyEquipment, "client supplies equipment"),
			flag(FactorBehavioralControl, g.BehavioralControl, "client controls how work is done"),
		}
	})
}
