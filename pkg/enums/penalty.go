package enums

import "fmt"

// PenaltyType is the severity of a punitive action.
type PenaltyType string

const (
	PenaltyTypeWarning    PenaltyType = "warning"
	PenaltyTypeSuspension PenaltyType = "suspension"
	PenaltyTypeBan        PenaltyType = "ban"
)

var penaltyPoints = map[PenaltyType]int{
	PenaltyTypeWarning:    1,
	PenaltyTypeSuspension: 3,
	PenaltyTypeBan:        5,
}

// IsValid reports whether the penalty type is known.
func (p PenaltyType) IsValid() bool {
	_, ok := penaltyPoints[p]
	return ok
}

// Points returns the penalty points added to the user for this type.
func (p PenaltyType) Points() int {
	return penaltyPoints[p]
}

// Suspends reports whether the penalty blocks the account.
func (p PenaltyType) Suspends() bool {
	return p == PenaltyTypeSuspension || p == PenaltyTypeBan
}

// ParsePenaltyType converts raw input into a PenaltyType.
func ParsePenaltyType(value string) (PenaltyType, error) {
	candidate := PenaltyType(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid penalty type %q", value)
}
