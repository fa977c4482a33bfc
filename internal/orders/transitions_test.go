package orders

import (
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionDeliveryGraph(t *testing.T) {
	legal := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusRiderAssigned},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusRiderAssigned, enums.OrderStatusPickedUp},
		{enums.OrderStatusPickedUp, enums.OrderStatusOnTheWay},
		{enums.OrderStatusOnTheWay, enums.OrderStatusDelivered},
		{enums.OrderStatusDelivered, enums.OrderStatusCompleted},
	}
	for _, edge := range legal {
		assert.True(t, CanTransition(edge[0], edge[1], false), "%s -> %s", edge[0], edge[1])
	}

	illegal := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusPickedUp},
		{enums.OrderStatusRiderAssigned, enums.OrderStatusDelivered},
		{enums.OrderStatusDelivered, enums.OrderStatusRiderAssigned},
		{enums.OrderStatusCompleted, enums.OrderStatusPending},
		{enums.OrderStatusCancelled, enums.OrderStatusPending},
		{enums.OrderStatusRiderAssigned, enums.OrderStatusCancelled},
	}
	for _, edge := range illegal {
		assert.False(t, CanTransition(edge[0], edge[1], false), "%s -> %s", edge[0], edge[1])
	}
}

func TestCanTransitionDisputeGraph(t *testing.T) {
	assert.True(t, CanTransition(enums.OrderStatusCompleted, enums.OrderStatusRiderAssigned, true))
	assert.True(t, CanTransition(enums.OrderStatusDelivered, enums.OrderStatusRiderAssigned, true))
	assert.True(t, CanTransition(enums.OrderStatusRiderAssigned, enums.OrderStatusPickedUp, true))
	assert.True(t, CanTransition(enums.OrderStatusPickedUp, enums.OrderStatusCancelled, true))

	assert.False(t, CanTransition(enums.OrderStatusPickedUp, enums.OrderStatusOnTheWay, true))
	assert.False(t, CanTransition(enums.OrderStatusDelivered, enums.OrderStatusCompleted, true))
}

func TestRiderSuccessor(t *testing.T) {
	next, ok := RiderSuccessor(enums.OrderStatusOnTheWay)
	assert.True(t, ok)
	assert.Equal(t, enums.OrderStatusDelivered, next)

	_, ok = RiderSuccessor(enums.OrderStatusDelivered)
	assert.False(t, ok)

	assert.True(t, IsRiderUpdatable(enums.OrderStatusPickedUp))
	assert.False(t, IsRiderUpdatable(enums.OrderStatusCompleted))
}
