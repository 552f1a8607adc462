package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tkartasl/lease-ledger/pkg/models"
)

var (
	one          = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// Generator builds leases from contract terms. The clock and id source are
// injected so generated leases are deterministic under test.
type Generator struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// NewGenerator creates a Generator backed by the wall clock and random UUIDs.
func NewGenerator() *Generator {
	return &Generator{now: time.Now, newID: uuid.New}
}

// NewGeneratorWithSources creates a Generator with explicit clock and id
// sources.
func NewGeneratorWithSources(now func() time.Time, newID func() uuid.UUID) *Generator {
	return &Generator{now: now, newID: newID}
}

// Generate amortizes the lease terms into a full installment schedule and
// returns the new lease. Totals start at the upfront fee; interest and
// recurring fees accrue only as payments are recorded.
func (g *Generator) Generate(input models.LeaseInput) (*models.Lease, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	monthlyRate := input.NominalRatePct.Div(hundred).Div(monthsInYear)
	payment := monthlyPayment(monthlyRate, input)

	balance := input.Price
	entries := make([]models.Installment, 0, input.TermMonths)

	for period := 1; period <= input.TermMonths; period++ {
		interest := balance.Mul(monthlyRate).Round(2)
		principal := payment.Sub(interest).Round(2)
		balance = balance.Sub(principal).Round(2)

		amount := payment.Add(input.MonthlyFee).Round(2)

		balanceAfter := balance
		if balanceAfter.IsNegative() {
			balanceAfter = decimal.Zero
		}

		entries = append(entries, models.Installment{
			ID:           g.newID(),
			Period:       period,
			DueDate:      input.StartDate.AddDate(0, period, 0),
			Payment:      amount,
			Interest:     interest,
			Principal:    principal,
			Fee:          input.MonthlyFee,
			AmountPaid:   decimal.Zero,
			Balance:      amount,
			LateInterest: decimal.Zero,
			BalanceAfter: balanceAfter,
			Paid:         false,
		})
	}

	return &models.Lease{
		LeaseInput: input,
		ID:         g.newID(),
		CreatedAt:  g.now(),
		Schedule:   entries,
		Totals: models.Totals{
			TotalPayments: input.UpfrontFee,
			TotalInterest: decimal.Zero,
			TotalFees:     input.UpfrontFee,
		},
	}, nil
}

// monthlyPayment computes the fixed monthly payment for the lease principal.
// With a zero rate the principal is split evenly; otherwise the standard
// annuity formula P*r/(1-(1+r)^-n) applies, computed here as
// P*r*(1+r)^n / ((1+r)^n - 1).
func monthlyPayment(monthlyRate decimal.Decimal, input models.LeaseInput) decimal.Decimal {
	term := decimal.NewFromInt(int64(input.TermMonths))
	if monthlyRate.IsZero() {
		return input.Price.Div(term)
	}

	growth := one.Add(monthlyRate).Pow(term)
	return input.Price.Mul(monthlyRate).Mul(growth).Div(growth.Sub(one))
}
