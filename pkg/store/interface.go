package store

import (
	"github.com/google/uuid"
	"github.com/tkartasl/lease-ledger/pkg/models"
)

// Storage defines the interface for database operations related to leases and
// payments. GetLease and ListLeases always load the full schedule.
type Storage interface {
	CreateLease(lease *models.Lease) error
	GetLease(id uuid.UUID) (*models.Lease, error)
	UpdateLease(lease *models.Lease) error
	ListLeases() ([]*models.Lease, error)

	CreatePayment(payment *models.Payment) error
	GetPayment(id uuid.UUID) (*models.Payment, error)
	GetPaymentsForLease(leaseID uuid.UUID) ([]*models.Payment, error)

	Close() error
}
