package enums

import "fmt"

// PickupStage tracks the physical return leg of a refund-with-return dispute.
type PickupStage string

const (
	PickupStageNone           PickupStage = "none"
	PickupStageAwaitingPickup PickupStage = "awaiting_pickup"
	PickupStageItemReceived   PickupStage = "item_received"
)

// PickupAction is an admin step in the pickup-mediated resolution flow.
type PickupAction string

const (
	PickupActionSendRider       PickupAction = "send_rider"
	PickupActionConfirmReceived PickupAction = "confirm_received"
	PickupActionReleaseRefund   PickupAction = "release_refund"
	PickupActionReleaseRiderPay PickupAction = "release_rider_pay"
)

var validPickupActions = []PickupAction{
	PickupActionSendRider,
	PickupActionConfirmReceived,
	PickupActionReleaseRefund,
	PickupActionReleaseRiderPay,
}

// IsValid reports whether the action is known.
func (a PickupAction) IsValid() bool {
	for _, candidate := range validPickupActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParsePickupAction converts raw input into a PickupAction.
func ParsePickupAction(value string) (PickupAction, error) {
	for _, candidate := range validPickupActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pickup action %q", value)
}
