package orders

type Status string

const (
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
	StatusFailed          Status = "FAILED"
)

// validNext encodes every allowed transition. AwaitingPayment resolves to
// exactly one terminal status; Failed and Expired may re-enter
// AwaitingPayment through an explicit payment retry, and Failed may still
// be cancelled by the buyer.
var validNext = map[Status]map[Status]bool{
	StatusAwaitingPayment: {
		StatusPaid:      true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusFailed: {
		StatusCancelled:       true,
		StatusAwaitingPayment: true,
	},
	StatusExpired: {
		StatusAwaitingPayment: true,
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no automatic transition leaves s. A buyer retry
// can still move Failed or Expired back to AwaitingPayment.
func (s Status) Terminal() bool {
	return s != StatusAwaitingPayment
}
