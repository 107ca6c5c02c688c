package order

// IDGenerator issues order ids; production wiring uses random UUIDs.
type IDGenerator interface {
	NewID() string
}
