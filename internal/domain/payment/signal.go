package payment

// Signal is the kind of payment notification applied by the lifecycle engine.
type Signal string

const (
	SignalProcessing Signal = "processing"
	SignalApproved   Signal = "approved"
	SignalRejected   Signal = "rejected"

	// SignalRefunded only comes from the administrative refund path.
	SignalRefunded Signal = "refunded"
	SignalUnknown  Signal = "unknown"
)

// Target returns the payment status a signal moves to.
func (s Signal) Target() (Status, bool) {
	switch s {
	case SignalProcessing:
		return StatusProcessing, true
	case SignalApproved:
		return StatusApproved, true
	case SignalRejected:
		return StatusRejected, true
	case SignalRefunded:
		return StatusRefunded, true
	}
	return "", false
}
