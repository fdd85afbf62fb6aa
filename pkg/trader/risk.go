package trader

import (
	"github.com/robik3456/tradebot/pkg/models"
)

// RiskAction is the outcome of a risk evaluation. ForceSell overrides
// whatever the strategy signalled this cycle.
type RiskAction struct {
	ForceSell bool
	Reason    string
}

// RiskGate checks an open position against its stop-loss and take-profit
// thresholds. It only fires while a position is held; a zero fraction
// disables that threshold.
type RiskGate struct {
	StopLossPct   float64
	TakeProfitPct float64
}

func (g RiskGate) Evaluate(pos models.Position, currentPrice float64) RiskAction {
	if !pos.Holding() || currentPrice <= 0 {
		return RiskAction{}
	}

	if g.StopLossPct > 0 && currentPrice <= pos.EntryPrice*(1-g.StopLossPct) {
		return RiskAction{ForceSell: true, Reason: models.ReasonStopLoss}
	}
	if g.TakeProfitPct > 0 && currentPrice >= pos.EntryPrice*(1+g.TakeProfitPct) {
		return RiskAction{ForceSell: true, Reason: models.ReasonTakeProfit}
	}
	return RiskAction{}
}
