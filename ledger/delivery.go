package ledger

// Delivery lifecycle of an allocation:
//
//	PENDING -> IN_TRANSIT -> DELIVERED
//
// Only the DELIVERED state changes anything, and only on the derived side:
// replay starts counting the OUT toward site stock. No status change ever
// touches the warehouse counter, which was already debited at allocation.
//
// Backward moves (DELIVERED -> PENDING) are legal through SetDeliveryStatus;
// the board only offers forward steps, through AdvanceDelivery.

var deliveryOrder = map[DeliveryStatus]int{
	DeliveryPending:   0,
	DeliveryInTransit: 1,
	DeliveryDelivered: 2,
}

// ValidDeliveryStatus reports whether s is one of the three lifecycle states.
func ValidDeliveryStatus(s DeliveryStatus) bool {
	_, ok := deliveryOrder[s]
	return ok
}

// IsTerminal reports whether no forward step exists from s.
func IsTerminal(s DeliveryStatus) bool { return s == DeliveryDelivered }

// NextDeliveryStatus returns the forward step from s. An empty status is read
// as PENDING.
func NextDeliveryStatus(s DeliveryStatus) (DeliveryStatus, error) {
	switch s {
	case DeliveryNone, DeliveryPending:
		return DeliveryInTransit, nil
	case DeliveryInTransit:
		return DeliveryDelivered, nil
	}
	return s, ErrInvalidTransition
}

// IsForward reports whether moving from -> to advances the lifecycle.
func IsForward(from, to DeliveryStatus) bool {
	if from == DeliveryNone {
		from = DeliveryPending
	}
	f, ok1 := deliveryOrder[from]
	t, ok2 := deliveryOrder[to]
	return ok1 && ok2 && t > f
}
