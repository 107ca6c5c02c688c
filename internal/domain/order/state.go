package order

// Status is the canonical order status shared by every component.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDifficulty     Status = "difficulty"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusUnknown        Status = "unknown"
)

var known = map[Status]struct{}{
	StatusPending: {}, StatusConfirmed: {}, StatusPreparing: {}, StatusReady: {},
	StatusOutForDelivery: {}, StatusDifficulty: {}, StatusDelivered: {}, StatusCancelled: {},
}

// ParseStatus maps s to a canonical status. Anything else, including legacy values
// from other services, is StatusUnknown.
func ParseStatus(s string) Status {
	if _, ok := known[Status(s)]; ok {
		return Status(s)
	}
	return StatusUnknown
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsPaidState reports whether an order in s has been paid for.
func (s Status) IsPaidState() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery, StatusDifficulty, StatusDelivered:
		return true
	}
	return false
}

// Trigger identifies who asks for a transition.
type Trigger uint8

const (
	TriggerPayment Trigger = 1 << iota
	TriggerOperator
)

func (t Trigger) String() string {
	switch t {
	case TriggerPayment:
		return "payment"
	case TriggerOperator:
		return "operator"
	}
	return "unknown"
}

type edge struct{ from, to Status }

var transitions = map[edge]Trigger{
	{StatusPending, StatusConfirmed}:         TriggerPayment,
	{StatusConfirmed, StatusPreparing}:       TriggerOperator,
	{StatusPreparing, StatusReady}:           TriggerOperator,
	{StatusReady, StatusOutForDelivery}:      TriggerOperator,
	{StatusOutForDelivery, StatusDelivered}:  TriggerOperator,
	{StatusOutForDelivery, StatusDifficulty}: TriggerOperator,
	{StatusDifficulty, StatusDelivered}:      TriggerOperator,
}

// CanTransition reports whether by may move an order from one status to another.
// Cancellation is reachable from every non-terminal status; terminal statuses accept nothing.
func CanTransition(from, to Status, by Trigger) bool {
	if from.IsTerminal() || from == StatusUnknown || to == StatusUnknown {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	allowed, ok := transitions[edge{from, to}]
	return ok && allowed&by != 0
}
