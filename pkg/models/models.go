package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLeaseNotFound         = errors.New("lease not found")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrTermMonthsInvalid     = errors.New("term months must be at least 1")
	ErrPriceNegative         = errors.New("price must not be negative")
	ErrRateNegative          = errors.New("nominal rate must not be negative")
	ErrUpfrontFeeNegative    = errors.New("upfront fee must not be negative")
	ErrMonthlyFeeNegative    = errors.New("monthly fee must not be negative")
	ErrPaymentAmountNegative = errors.New("payment amount must not be negative")
)

// LeaseInput holds the immutable contract terms a lease is created from.
type LeaseInput struct {
	CompanyID      string          `json:"companyId"`
	ItemID         string          `json:"itemId"`
	Price          decimal.Decimal `json:"price"`
	TermMonths     int             `json:"termMonths"`
	NominalRatePct decimal.Decimal `json:"nominalRatePct"` // Annual rate in percent
	StartDate      time.Time       `json:"startDate"`
	UpfrontFee     decimal.Decimal `json:"upfrontFee"`
	MonthlyFee     decimal.Decimal `json:"monthlyFee"`
}

func (in *LeaseInput) Validate() error {
	if in.TermMonths < 1 {
		return ErrTermMonthsInvalid
	}
	if in.Price.IsNegative() {
		return ErrPriceNegative
	}
	if in.NominalRatePct.IsNegative() {
		return ErrRateNegative
	}
	if in.UpfrontFee.IsNegative() {
		return ErrUpfrontFeeNegative
	}
	if in.MonthlyFee.IsNegative() {
		return ErrMonthlyFeeNegative
	}
	return nil
}

// Totals is the lease's running ledger. It is maintained incrementally as
// payments are recorded and must always match a fold over the schedule plus
// the upfront fee.
type Totals struct {
	TotalPayments decimal.Decimal `json:"totalPayments"`
	TotalInterest decimal.Decimal `json:"totalInterest"`
	TotalFees     decimal.Decimal `json:"totalFees"`
}

// Lease is a persisted installment contract with its amortization schedule.
type Lease struct {
	LeaseInput
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Schedule  []Installment `json:"schedule"` // Ordered by period ascending, one per month of the term
	Totals    Totals        `json:"totals"`
}

// Clone returns a deep copy of the lease with its own schedule slice, so the
// copy can be handed to another goroutine without aliasing the original.
func (l *Lease) Clone() *Lease {
	c := *l
	c.Schedule = append([]Installment(nil), l.Schedule...)
	return &c
}

// InstallmentByID returns a copy of the schedule entry with the given id.
// Callers get a snapshot; the schedule itself is only replaced through
// ReplaceInstallment.
func (l *Lease) InstallmentByID(id uuid.UUID) (Installment, bool) {
	for _, inst := range l.Schedule {
		if inst.ID == id {
			return inst, true
		}
	}
	return Installment{}, false
}

// ReplaceInstallment swaps the schedule entry matching the installment's
// period, preserving order.
func (l *Lease) ReplaceInstallment(inst Installment) {
	for i := range l.Schedule {
		if l.Schedule[i].Period == inst.Period {
			l.Schedule[i] = inst
			return
		}
	}
}

// Installment is one scheduled period's obligation within a lease.
//
// Balance is what is still owed for this installment and may go negative on
// overpayment. BalanceAfter is the remaining lease principal after this
// installment when paid on schedule, fixed at generation time.
type Installment struct {
	ID           uuid.UUID       `json:"id"`
	Period       int             `json:"period"` // 1-based
	DueDate      time.Time       `json:"dueDate"`
	Payment      decimal.Decimal `json:"payment"`
	Interest     decimal.Decimal `json:"interest"`
	Principal    decimal.Decimal `json:"principal"`
	Fee          decimal.Decimal `json:"fee"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	Balance      decimal.Decimal `json:"balance"`
	LateInterest decimal.Decimal `json:"lateInterest"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Paid         bool            `json:"paid"`
}

// Payment is an incoming payment against one installment of a lease.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	InstallmentID uuid.UUID       `json:"installmentId"`
	LeaseID       uuid.UUID       `json:"leaseId"`
	PaidAt        time.Time       `json:"paidAt"`
	Amount        decimal.Decimal `json:"amount"`
}

// Validation is the verdict produced by validating a payment against a lease.
// Installment is the matched entry after balance adjustment, nil if no entry
// matched.
type Validation struct {
	IsValid     bool         `json:"isValid"`
	Message     string       `json:"message"`
	DaysLate    int          `json:"daysLate"`
	Installment *Installment `json:"installment"`
}

// InvalidPayment is the event forwarded to the asynchronous corrector when
// validation fails.
type InvalidPayment struct {
	Lease       *Lease       `json:"lease"`
	DaysLate    int          `json:"daysLate"`
	Payment     Payment      `json:"payment"`
	Installment *Installment `json:"installment"`
}
