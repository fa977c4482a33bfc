package orders

import (
	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// riderSuccessor is the only status a rider may advance an undisputed order to.
var riderSuccessor = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusRiderAssigned: enums.OrderStatusPickedUp,
	enums.OrderStatusPickedUp:      enums.OrderStatusOnTheWay,
	enums.OrderStatusOnTheWay:      enums.OrderStatusDelivered,
}

var regularTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:       {enums.OrderStatusRiderAssigned, enums.OrderStatusCancelled},
	enums.OrderStatusRiderAssigned: {enums.OrderStatusPickedUp},
	enums.OrderStatusPickedUp:      {enums.OrderStatusOnTheWay},
	enums.OrderStatusOnTheWay:      {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:     {enums.OrderStatusCompleted},
}

// the return leg of a refund-with-return dispute
var disputeTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDelivered:     {enums.OrderStatusRiderAssigned},
	enums.OrderStatusCompleted:     {enums.OrderStatusRiderAssigned},
	enums.OrderStatusRiderAssigned: {enums.OrderStatusPickedUp},
	enums.OrderStatusPickedUp:      {enums.OrderStatusCancelled},
}

// CanTransition reports whether from → to is a legal edge. Disputed orders
// follow the return-leg graph instead of the delivery graph.
func CanTransition(from, to enums.OrderStatus, disputed bool) bool {
	graph := regularTransitions
	if disputed {
		graph = disputeTransitions
	}
	for _, candidate := range graph[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// RiderSuccessor returns the status a rider may move the order to next.
func RiderSuccessor(from enums.OrderStatus) (enums.OrderStatus, bool) {
	next, ok := riderSuccessor[from]
	return next, ok
}

// IsRiderUpdatable reports whether target is one of the statuses a rider sets directly.
func IsRiderUpdatable(target enums.OrderStatus) bool {
	switch target {
	case enums.OrderStatusPickedUp, enums.OrderStatusOnTheWay, enums.OrderStatusDelivered:
		return true
	}
	return false
}
