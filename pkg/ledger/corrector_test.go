package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkartasl/lease-ledger/pkg/models"
	"github.com/tkartasl/lease-ledger/pkg/queue"
)

// lateUnderpaidEvent builds the event the validator would emit for a payment
// of 90 against a 100 installment, five days late. Rate 7.3% gives a daily
// rate of exactly 0.0002.
func lateUnderpaidEvent(lease *models.Lease) models.InvalidPayment {
	payment := testPayment(lease, 90, testNow.Add(5*24*time.Hour))
	validation, payment := Validate(payment, lease)
	return models.InvalidPayment{
		Lease:       lease,
		DaysLate:    validation.DaysLate,
		Payment:     payment,
		Installment: validation.Installment,
	}
}

func TestCorrectorHandle_LateUnderpayment(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	c := NewCorrector(l, queue.New(1, testLogger()), testLogger())

	lease := testLease(5)
	lease.NominalRatePct = decimal.NewFromFloat(7.3)
	store.CreateLease(lease)

	event := lateUnderpaidEvent(lease)
	require.Equal(t, 5, event.DaysLate)

	require.NoError(t, c.Handle(event))

	// Penalty on the outstanding balance of 10: 10 * 0.0002 * 5 = 0.01
	assert.True(t, lease.Schedule[0].LateInterest.Equal(decimal.NewFromFloat(0.01)),
		"lateInterest = %s", lease.Schedule[0].LateInterest)
	assert.True(t, lease.Totals.TotalPayments.Equal(decimal.NewFromInt(90)),
		"totalPayments = %s", lease.Totals.TotalPayments)

	// Totals carry both the penalty and the remaining-principal interest:
	// 0.01 + round2(1000 * 7.3/100/12) = 0.01 + 6.08
	expectedInterest := decimal.NewFromFloat(6.09)
	assert.True(t, lease.Totals.TotalInterest.Equal(expectedInterest),
		"totalInterest = %s", lease.Totals.TotalInterest)

	assert.True(t, lease.Schedule[0].Balance.Equal(decimal.NewFromInt(10)))
	assert.False(t, lease.Schedule[0].Paid)

	applied, err := l.Applied(event.Payment.ID)
	require.NoError(t, err)
	assert.True(t, applied, "payment should be marked applied")
}

func TestCorrectorHandle_PenaltyOnScheduledPaymentWhenOverpaid(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	c := NewCorrector(l, queue.New(1, testLogger()), testLogger())

	lease := testLease(5)
	lease.NominalRatePct = decimal.NewFromFloat(7.3)
	lease.Schedule[0].Balance = decimal.NewFromInt(90)
	store.CreateLease(lease)

	// Scheduled payment of 100 against a balance already reduced to 90, five
	// days late: the balance goes negative through the overpayment branch, so
	// the penalty base falls back to the scheduled payment.
	// 100 * 0.0002 * 5 = 0.10
	payment := testPayment(lease, 100, testNow.Add(5*24*time.Hour))
	validation, payment := Validate(payment, lease)
	require.False(t, validation.IsValid)

	event := models.InvalidPayment{Lease: lease, DaysLate: validation.DaysLate, Payment: payment, Installment: validation.Installment}
	require.NoError(t, c.Handle(event))

	assert.True(t, lease.Schedule[0].LateInterest.Equal(decimal.NewFromFloat(0.10)),
		"lateInterest = %s", lease.Schedule[0].LateInterest)
	assert.True(t, lease.Schedule[0].Paid)
}

func TestCorrectorHandle_AlreadyApplied(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	c := NewCorrector(l, queue.New(1, testLogger()), testLogger())

	lease := testLease(12)
	store.CreateLease(lease)

	event := lateUnderpaidEvent(lease)
	require.NoError(t, store.CreatePayment(&event.Payment))

	require.NoError(t, c.Handle(event))

	assert.True(t, lease.Totals.TotalPayments.IsZero(), "totals must be untouched on redelivery")
	assert.True(t, lease.Totals.TotalInterest.IsZero())
	assert.True(t, lease.Schedule[0].LateInterest.IsZero())
}

func TestCorrectorHandle_OnTimeUnderpayment(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	c := NewCorrector(l, queue.New(1, testLogger()), testLogger())

	lease := testLease(12)
	store.CreateLease(lease)

	payment := testPayment(lease, 90, testNow)
	validation, payment := Validate(payment, lease)
	event := models.InvalidPayment{Lease: lease, DaysLate: validation.DaysLate, Payment: payment, Installment: validation.Installment}

	require.NoError(t, c.Handle(event))

	// No lateness, no penalty, no ledger effect
	assert.True(t, lease.Totals.TotalPayments.IsZero())
	applied, err := l.Applied(payment.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCorrector_Restart(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	q := queue.New(4, testLogger())
	c := NewCorrector(l, q, testLogger())

	c.Start()
	c.Stop()

	lease := testLease(5)
	lease.NominalRatePct = decimal.NewFromFloat(7.3)
	store.CreateLease(lease)
	event := lateUnderpaidEvent(lease)

	// A stopped corrector must come back up and keep consuming.
	c.Start()
	defer c.Stop()

	require.True(t, q.Enqueue(event))

	assert.Eventually(t, func() bool {
		applied, err := l.Applied(event.Payment.ID)
		return err == nil && applied
	}, 2*time.Second, 10*time.Millisecond, "restarted corrector should apply the queued payment")
}

func TestCorrector_ConsumesQueue(t *testing.T) {
	store := NewMockStore()
	l := NewLedger(store, testLogger())
	q := queue.New(4, testLogger())
	c := NewCorrector(l, q, testLogger())

	lease := testLease(5)
	lease.NominalRatePct = decimal.NewFromFloat(7.3)
	store.CreateLease(lease)

	event := lateUnderpaidEvent(lease)

	c.Start()
	defer c.Stop()

	require.True(t, q.Enqueue(event))

	assert.Eventually(t, func() bool {
		applied, err := l.Applied(event.Payment.ID)
		return err == nil && applied
	}, 2*time.Second, 10*time.Millisecond, "corrector should apply the queued payment")
}
