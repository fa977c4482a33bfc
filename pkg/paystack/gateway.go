// Package paystack verifies gateway payments through the Paystack API behind
// a circuit breaker.
package paystack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/campusmart/campusmart-backend/pkg/money"
	paystackapi "github.com/rpip/paystack-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// StatusSuccess is the gateway status of a settled charge.
const StatusSuccess = "success"

// ErrUnavailable marks transport failures and an open breaker.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Verification is the gateway's view of a charge.
type Verification struct {
	Reference   string
	Status      string
	Currency    string
	AmountMinor int64
}

// Succeeded reports whether the charge settled.
func (v *Verification) Succeeded() bool {
	return v != nil && strings.EqualFold(v.Status, StatusSuccess)
}

type transactionVerifier interface {
	Verify(reference string) (*paystackapi.Transaction, error)
}

// Gateway verifies payment references.
type Gateway struct {
	api     transactionVerifier
	breaker *gobreaker.CircuitBreaker[*Verification]
	metrics *metrics.Marketplace
}

// New builds a gateway from configuration.
func New(cfg config.PaystackConfig, m *metrics.Marketplace) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("paystack secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := paystackapi.NewClient(cfg.SecretKey, &http.Client{Timeout: timeout})
	return newGateway(client.Transaction, cfg, m), nil
}

func newGateway(api transactionVerifier, cfg config.PaystackConfig, m *metrics.Marketplace) *Gateway {
	failures := cfg.BreakerFails
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[*Verification](gobreaker.Settings{
		Name:        "paystack",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
	return &Gateway{api: api, breaker: breaker, metrics: m}
}

// Verify asks the gateway for the charge behind reference. A declined charge
// is returned as a Verification, not an error; errors wrap ErrUnavailable.
func (g *Gateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (*Verification, error) {
		txn, err := g.api.Verify(reference)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, fmt.Errorf("empty verification response")
		}
		return &Verification{
			Reference:   txn.Reference,
			Status:      txn.Status,
			Currency:    txn.Currency,
			AmountMinor: decimal.NewFromFloat(float64(txn.Amount)).Round(0).IntPart(),
		}, nil
	})
	if err != nil {
		g.metrics.ObserveGateway("error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.metrics.ObserveGateway(strings.ToLower(result.Status), time.Since(start))
	if result.Reference == "" {
		result.Reference = reference
	}
	return result, nil
}

// MatchesAmount reports whether the settled charge equals amount in major units.
func (v *Verification) MatchesAmount(amount decimal.Decimal) bool {
	return v != nil && v.AmountMinor == money.ToMinor(amount)
}
