package types

import "github.com/shopspring/decimal"

// RiskStateSnapshot is an immutable read of the process-wide risk state,
// §3. The live, atomically-settable version lives in internal/risk; this
// is the value type handed to callers and serialized for the ops API and
// audit log.
type RiskStateSnapshot struct {
	NAV            decimal.Decimal
	DailyPnL       decimal.Decimal
	DailyRealized  decimal.Decimal
	Halted         bool
	HaltReason     string
}

// DenyReason enumerates RiskGate.Allow rejection causes (§4.7).
type DenyReason string

const (
	DenyHalted                  DenyReason = "halted"
	DenyMaxPositionExceeded     DenyReason = "max_position_usd_exceeded"
	DenySingleLossExceeded      DenyReason = "single_trade_loss_would_exceed"
	DenyDailyDrawdownExceeded   DenyReason = "daily_drawdown_would_exceed"
)

// Decision is the outcome of a RiskGate.Allow call.
type Decision struct {
	Approved bool
	Reason   DenyReason
}
