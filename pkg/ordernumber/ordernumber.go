// Package ordernumber issues human-readable order numbers that carry a Luhn
// check digit so typos are caught before a lookup hits the database.
package ordernumber

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/EClaesson/go-luhn"
)

const (
	// Prefix marks every order number issued by the marketplace.
	Prefix     = "CM"
	bodyDigits = 9
)

// New returns a fresh order number such as CM4829301175.
func New() string {
	body := fmt.Sprintf("%0*d", bodyDigits, rand.N(uint64(1_000_000_000)))
	return Prefix + body + checkDigit(body)
}

// Valid reports whether the value is a well-formed order number with a correct check digit.
func Valid(value string) bool {
	digits, ok := strings.CutPrefix(strings.TrimSpace(value), Prefix)
	if !ok || len(digits) != bodyDigits+1 {
		return false
	}
	valid, err := luhn.IsValid(digits)
	return err == nil && valid
}

func checkDigit(body string) string {
	for d := 0; d <= 9; d++ {
		candidate := fmt.Sprintf("%s%d", body, d)
		if ok, err := luhn.IsValid(candidate); err == nil && ok {
			return fmt.Sprintf("%d", d)
		}
	}
	// unreachable: exactly one digit satisfies the checksum
	return "0"
}
