package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestLeaseClone(t *testing.T) {
	lease := &Lease{
		ID: uuid.New(),
		Schedule: []Installment{
			{
				ID:      uuid.New(),
				Period:  1,
				DueDate: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
				Payment: decimal.NewFromInt(100),
				Balance: decimal.NewFromInt(100),
			},
		},
		Totals: Totals{
			TotalPayments: decimal.NewFromInt(50),
			TotalInterest: decimal.Zero,
			TotalFees:     decimal.NewFromInt(50),
		},
	}

	clone := lease.Clone()
	clone.Totals.TotalPayments = decimal.NewFromInt(150)
	clone.Schedule[0].Balance = decimal.Zero
	clone.Schedule[0].Paid = true

	if !lease.Totals.TotalPayments.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected original totals untouched, got %s", lease.Totals.TotalPayments)
	}
	if !lease.Schedule[0].Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected original balance untouched, got %s", lease.Schedule[0].Balance)
	}
	if lease.Schedule[0].Paid {
		t.Error("Expected original installment still unpaid")
	}
	if clone.ID != lease.ID {
		t.Errorf("Expected same id on clone, got %s", clone.ID)
	}
}
