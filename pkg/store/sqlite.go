package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkartasl/lease-ledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		price TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		nominal_rate_pct TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		upfront_fee TEXT NOT NULL,
		monthly_fee TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		total_payments TEXT NOT NULL DEFAULT '0',
		total_interest TEXT NOT NULL DEFAULT '0',
		total_fees TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL,
		period INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		payment TEXT NOT NULL,
		interest TEXT NOT NULL,
		principal TEXT NOT NULL,
		fee TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL,
		late_interest TEXT NOT NULL DEFAULT '0',
		balance_after TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(lease_id) REFERENCES leases(id),
		UNIQUE(lease_id, period)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL,
		installment_id TEXT NOT NULL,
		paid_at DATETIME NOT NULL,
		amount TEXT NOT NULL,
		FOREIGN KEY(lease_id) REFERENCES leases(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLease inserts a new lease and its full schedule in one transaction.
func (s *SQLiteStore) CreateLease(lease *models.Lease) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO leases (id, company_id, item_id, price, term_months, nominal_rate_pct, start_date, upfront_fee, monthly_fee, created_at, total_payments, total_interest, total_fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lease.ID.String(), lease.CompanyID, lease.ItemID, lease.Price, lease.TermMonths, lease.NominalRatePct, lease.StartDate, lease.UpfrontFee, lease.MonthlyFee, lease.CreatedAt, lease.Totals.TotalPayments, lease.Totals.TotalInterest, lease.Totals.TotalFees,
	)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	for _, inst := range lease.Schedule {
		_, err = tx.Exec(
			`INSERT INTO installments (id, lease_id, period, due_date, payment, interest, principal, fee, amount_paid, balance, late_interest, balance_after, paid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID.String(), lease.ID.String(), inst.Period, inst.DueDate, inst.Payment, inst.Interest, inst.Principal, inst.Fee, inst.AmountPaid, inst.Balance, inst.LateInterest, inst.BalanceAfter, inst.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Period, err)
		}
	}

	return tx.Commit()
}

// GetLease retrieves a lease and its schedule by lease ID.
func (s *SQLiteStore) GetLease(id uuid.UUID) (*models.Lease, error) {
	var lease models.Lease
	var leaseIDStr string
	var startDate, createdAt time.Time

	row := s.db.QueryRow(`SELECT id, company_id, item_id, price, term_months, nominal_rate_pct, start_date, upfront_fee, monthly_fee, created_at, total_payments, total_interest, total_fees FROM leases WHERE id = ?`, id.String())
	err := row.Scan(&leaseIDStr, &lease.CompanyID, &lease.ItemID, &lease.Price, &lease.TermMonths, &lease.NominalRatePct, &startDate, &lease.UpfrontFee, &lease.MonthlyFee, &createdAt, &lease.Totals.TotalPayments, &lease.Totals.TotalInterest, &lease.Totals.TotalFees)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	lease.ID = uuid.MustParse(leaseIDStr)
	lease.StartDate = startDate
	lease.CreatedAt = createdAt

	schedule, err := s.loadSchedule(lease.ID)
	if err != nil {
		return nil, err
	}
	lease.Schedule = schedule
	return &lease, nil
}

// UpdateLease persists the lease totals and the mutable installment state.
func (s *SQLiteStore) UpdateLease(lease *models.Lease) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE leases SET total_payments = ?, total_interest = ?, total_fees = ? WHERE id = ?`,
		lease.Totals.TotalPayments, lease.Totals.TotalInterest, lease.Totals.TotalFees, lease.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update lease: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrLeaseNotFound
	}

	for _, inst := range lease.Schedule {
		_, err = tx.Exec(
			`UPDATE installments SET amount_paid = ?, balance = ?, late_interest = ?, paid = ? WHERE id = ?`,
			inst.AmountPaid, inst.Balance, inst.LateInterest, inst.Paid, inst.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update installment %d: %w", inst.Period, err)
		}
	}

	return tx.Commit()
}

// ListLeases retrieves all leases with their schedules.
func (s *SQLiteStore) ListLeases() ([]*models.Lease, error) {
	rows, err := s.db.Query(`SELECT id FROM leases ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("failed to scan lease id: %w", err)
		}
		ids = append(ids, uuid.MustParse(idStr))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	leases := make([]*models.Lease, 0, len(ids))
	for _, id := range ids {
		lease, err := s.GetLease(id)
		if err != nil {
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

func (s *SQLiteStore) loadSchedule(leaseID uuid.UUID) ([]models.Installment, error) {
	rows, err := s.db.Query(`SELECT id, period, due_date, payment, interest, principal, fee, amount_paid, balance, late_interest, balance_after, paid FROM installments WHERE lease_id = ? ORDER BY period ASC`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for lease %s: %w", leaseID, err)
	}
	defer rows.Close()

	var schedule []models.Installment
	for rows.Next() {
		var inst models.Installment
		var instIDStr string
		var dueDate time.Time
		if err := rows.Scan(&instIDStr, &inst.Period, &dueDate, &inst.Payment, &inst.Interest, &inst.Principal, &inst.Fee, &inst.AmountPaid, &inst.Balance, &inst.LateInterest, &inst.BalanceAfter, &inst.Paid); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		inst.ID = uuid.MustParse(instIDStr)
		inst.DueDate = dueDate
		schedule = append(schedule, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return schedule, nil
}

// CreatePayment inserts a new payment. The primary key makes a second insert
// of the same payment id fail, which the ledger relies on for idempotence.
func (s *SQLiteStore) CreatePayment(payment *models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (id, lease_id, installment_id, paid_at, amount)
		VALUES (?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LeaseID.String(), payment.InstallmentID.String(), payment.PaidAt, payment.Amount,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	var idStr, leaseIDStr, instIDStr string
	var paidAt time.Time

	row := s.db.QueryRow(`SELECT id, lease_id, installment_id, paid_at, amount FROM payments WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &leaseIDStr, &instIDStr, &paidAt, &payment.Amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	payment.ID = uuid.MustParse(idStr)
	payment.LeaseID = uuid.MustParse(leaseIDStr)
	payment.InstallmentID = uuid.MustParse(instIDStr)
	payment.PaidAt = paidAt
	return &payment, nil
}

// GetPaymentsForLease retrieves all payments recorded against a lease.
func (s *SQLiteStore) GetPaymentsForLease(leaseID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, lease_id, installment_id, paid_at, amount FROM payments WHERE lease_id = ? ORDER BY paid_at ASC`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for lease %s: %w", leaseID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var payment models.Payment
		var idStr, leaseIDStr, instIDStr string
		var paidAt time.Time
		if err := rows.Scan(&idStr, &leaseIDStr, &instIDStr, &paidAt, &payment.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payment.ID = uuid.MustParse(idStr)
		payment.LeaseID = uuid.MustParse(leaseIDStr)
		payment.InstallmentID = uuid.MustParse(instIDStr)
		payment.PaidAt = paidAt
		payments = append(payments, &payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for lease payments: %w", err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
