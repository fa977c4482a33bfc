package enums

import "fmt"

// NotificationType categorizes in-app notifications.
type NotificationType string

const (
	NotificationTypeOrderPlaced     NotificationType = "order_placed"
	NotificationTypeNewOrder        NotificationType = "new_order"
	NotificationTypeOrderUpdate     NotificationType = "order_update"
	NotificationTypeOrderDelivered  NotificationType = "order_delivered"
	NotificationTypeFundsReleased   NotificationType = "funds_released"
	NotificationTypeDisputeUpdate   NotificationType = "dispute_update"
	NotificationTypePickupAssigned  NotificationType = "pickup_assigned"
	NotificationTypeDisputeMessage  NotificationType = "dispute_message"
	NotificationTypeAccountPenalty  NotificationType = "account_penalty"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypeWithdrawalState NotificationType = "withdrawal_update"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypeNewOrder,
	NotificationTypeOrderUpdate,
	NotificationTypeOrderDelivered,
	NotificationTypeFundsReleased,
	NotificationTypeDisputeUpdate,
	NotificationTypePickupAssigned,
	NotificationTypeDisputeMessage,
	NotificationTypeAccountPenalty,
	NotificationTypeOrderCancelled,
	NotificationTypeWithdrawalState,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
