package lifecycle

const (
	DefaultBookingCost  = 5
	DefaultReward       = 10
	DefaultRoomCapacity = 2
	DefaultRoomPrefix   = "skillxchange"
)

// Policy holds the knobs of the credit economy and of room naming.
type Policy struct {
	// BookingCost is held from the learner at request time when
	// ChargeAtRequest is set, and refunded on decline or cancel.
	BookingCost int64
	// Reward is what the teacher receives on completion. With
	// ChargeAtRequest it is funded externally, otherwise it is moved from
	// the learner's balance, clamped to what the learner holds.
	Reward          int64
	ChargeAtRequest bool
	// RejectDuplicates fails a repeated pending request with
	// domain.ErrAlreadyPending instead of returning the pending one.
	RejectDuplicates bool
	RoomCapacity     int
	RoomPrefix       string
	SaltRooms        bool
}

func DefaultPolicy() Policy {
	return Policy{
		BookingCost:     DefaultBookingCost,
		Reward:          DefaultReward,
		ChargeAtRequest: true,
		RoomCapacity:    DefaultRoomCapacity,
		RoomPrefix:      DefaultRoomPrefix,
		SaltRooms:       true,
	}
}
