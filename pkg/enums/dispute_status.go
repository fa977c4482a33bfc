package enums

import "fmt"

// DisputeStatus is the public lifecycle of a dispute.
type DisputeStatus string

const (
	DisputeStatusOpen                DisputeStatus = "OPEN"
	DisputeStatusUnderReview         DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolvedBuyerFavor  DisputeStatus = "RESOLVED_BUYER_FAVOR"
	DisputeStatusResolvedSellerFavor DisputeStatus = "RESOLVED_SELLER_FAVOR"
	DisputeStatusResolvedCompromise  DisputeStatus = "RESOLVED_COMPROMISE"
	DisputeStatusDismissed           DisputeStatus = "DISMISSED"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusResolvedBuyerFavor,
	DisputeStatusResolvedSellerFavor,
	DisputeStatusResolvedCompromise,
	DisputeStatusDismissed,
}

func (s DisputeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DisputeStatus.
func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the dispute is closed and immutable.
func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeStatusResolvedBuyerFavor,
		DisputeStatusResolvedSellerFavor,
		DisputeStatusResolvedCompromise,
		DisputeStatusDismissed:
		return true
	}
	return false
}

// RefundsBuyer reports whether resolving with this status pays the buyer back.
func (s DisputeStatus) RefundsBuyer() bool {
	return s == DisputeStatusResolvedBuyerFavor || s == DisputeStatusResolvedCompromise
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}
