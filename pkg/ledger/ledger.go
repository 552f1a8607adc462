package ledger

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tkartasl/lease-ledger/pkg/models"
	"github.com/tkartasl/lease-ledger/pkg/store"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	daysInYear   = decimal.NewFromInt(365)
)

// Ledger applies validated payments to a lease's running totals.
type Ledger struct {
	storage store.Storage
	log     *logrus.Logger
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *logrus.Logger) *Ledger {
	return &Ledger{storage: s, log: log}
}

// LateInterest computes the simple daily-accrual penalty on an outstanding
// balance. Not compounded; zero when the payment is not late.
func LateInterest(balance, annualRatePct decimal.Decimal, daysLate int) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	dailyRate := annualRatePct.Div(hundred).Div(daysInYear)
	return balance.Mul(dailyRate).Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
}

// Validate checks an incoming payment against the lease schedule. The matched
// installment and the payment are copied and adjusted, never mutated in
// place; callers thread the returned snapshot through to Record. A payment
// can be flagged both late and short, each with its own message fragment,
// while still producing one authoritative installment snapshot.
//
// An amount at or above the scheduled payment is normalized on the returned
// payment copy to the scheduled amount so the ledger never books an overpaid
// figure.
func Validate(payment models.Payment, lease *models.Lease) (models.Validation, models.Payment) {
	inst, ok := lease.InstallmentByID(payment.InstallmentID)
	if !ok {
		return models.Validation{IsValid: false, Message: "Can't find installment", DaysLate: 0, Installment: nil}, payment
	}
	if inst.Paid {
		return models.Validation{IsValid: false, Message: "Installment is already paid", DaysLate: 0, Installment: &inst}, payment
	}

	isValid := true
	daysLate := 0
	var messages []string

	if payment.PaidAt.After(inst.DueDate) {
		daysLate = int(math.Ceil(payment.PaidAt.Sub(inst.DueDate).Hours() / 24))
		isValid = false
		messages = append(messages, fmt.Sprintf("Payment is %d days late.", daysLate))
	}

	if !payment.Amount.Equal(inst.Balance) {
		if payment.Amount.LessThan(inst.Payment) {
			// Underpayment relative to the scheduled payment, not the
			// possibly-already-reduced balance.
			isValid = false
			inst.Balance = inst.Balance.Sub(payment.Amount).Round(2)
			inst.AmountPaid = payment.Amount
			messages = append(messages, fmt.Sprintf("Paid amount %s differs from monthly payment of %s", payment.Amount, inst.Payment.StringFixed(2)))
		} else {
			inst.Balance = inst.Balance.Sub(payment.Amount).Round(2)
			payment.Amount = inst.Payment
		}
	}

	return models.Validation{IsValid: isValid, Message: strings.Join(messages, " "), DaysLate: daysLate, Installment: &inst}, payment
}

// Record applies a validated payment's effects to the lease totals and
// installment paid-state, persists the lease, and returns the remaining
// balance message.
//
// The stored payment row is the idempotency marker: the first call inserts
// it and applies the totals, any later call with the same payment id only
// replays the installment state. This keeps the ledger effect at-most-once
// even when the synchronous path and the corrector both record the same
// payment.
func (l *Ledger) Record(payment models.Payment, lease *models.Lease, inst *models.Installment) (string, error) {
	first, err := l.markApplied(payment)
	if err != nil {
		return "", err
	}

	if first {
		monthlyRate := lease.NominalRatePct.Div(hundred).Div(monthsInYear)
		// Interest keeps accruing on the remaining lease principal, separate
		// from the installment's own amortization interest.
		interest := inst.BalanceAfter.Mul(monthlyRate).Round(2)

		lease.Totals.TotalPayments = lease.Totals.TotalPayments.Add(payment.Amount)
		lease.Totals.TotalInterest = lease.Totals.TotalInterest.Add(interest)
		lease.Totals.TotalFees = lease.Totals.TotalFees.Add(inst.Fee)
	} else {
		l.log.WithFields(logrus.Fields{"lease": lease.ID, "payment": payment.ID}).
			Info("payment already applied, skipping totals")
	}

	inst.Paid = !inst.Balance.GreaterThan(decimal.Zero)
	lease.ReplaceInstallment(*inst)

	if err := l.storage.UpdateLease(lease); err != nil {
		return "", fmt.Errorf("failed to update lease: %w", err)
	}

	return fmt.Sprintf("Remaining balance is %s", inst.BalanceAfter), nil
}

// Applied reports whether a payment's ledger effects have been applied.
func (l *Ledger) Applied(paymentID uuid.UUID) (bool, error) {
	_, err := l.storage.GetPayment(paymentID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrPaymentNotFound) {
		return false, nil
	}
	return false, err
}

// markApplied stores the payment as the applied marker. Returns true when
// this call was the first application.
func (l *Ledger) markApplied(payment models.Payment) (bool, error) {
	applied, err := l.Applied(payment.ID)
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	if err := l.storage.CreatePayment(&payment); err != nil {
		return false, fmt.Errorf("failed to store payment: %w", err)
	}
	return true, nil
}
