package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fleet-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type RentalPaymentRepository struct {
	DB *pgxpool.Pool
}

func NewRentalPaymentRepository(db *pgxpool.Pool) *RentalPaymentRepository {
	return &RentalPaymentRepository{DB: db}
}

const rentalPaymentColumns = `
	id::text, rental_id, customer_name, vehicle_registration, COALESCE(company, ''),
	amount_due::text, payment_status, payment_due_date, paid_date,
	payment_method, transaction_id, created_at, updated_at
`

func scanRentalPayment(row pgx.Row) (*models.RentalPayment, error) {
	p := &models.RentalPayment{}
	var amount, status string

	err := row.Scan(
		&p.ID,
		&p.RentalID,
		&p.CustomerName,
		&p.VehicleRegistration,
		&p.Company,
		&amount,
		&status,
		&p.PaymentDueDate,
		&p.PaidDate,
		&p.PaymentMethod,
		&p.TransactionID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AmountDue, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_due %q: %w", amount, err)
	}
	p.PaymentStatus = models.PaymentStatus(status)

	return p, nil
}

// Create inserts a new payment record for a booked rental
func (r *RentalPaymentRepository) Create(ctx context.Context, p *models.RentalPayment) error {
	query := `
		INSERT INTO rental_payments (
			id, rental_id, customer_name, vehicle_registration, company,
			amount_due, payment_status, payment_due_date, paid_date,
			payment_method, transaction_id
		)
		VALUES ($1::text::uuid, $2, $3, $4, NULLIF($5, ''), $6::text::numeric, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.DB.QueryRow(ctx, query,
		p.ID,
		p.RentalID,
		p.CustomerName,
		p.VehicleRegistration,
		p.Company,
		p.AmountDue.StringFixed(2),
		string(p.PaymentStatus),
		p.PaymentDueDate,
		p.PaidDate,
		p.PaymentMethod,
		p.TransactionID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRental
		}
		return fmt.Errorf("failed to create rental payment: %w", err)
	}

	return nil
}

// Get retrieves a payment by its record ID
func (r *RentalPaymentRepository) Get(ctx context.Context, id string) (*models.RentalPayment, error) {
	query := `SELECT ` + rentalPaymentColumns + ` FROM rental_payments WHERE id::text = $1`

	p, err := scanRentalPayment(r.DB.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetByRentalID retrieves the payment attached to a rental, ignoring case
func (r *RentalPaymentRepository) GetByRentalID(ctx context.Context, rentalID string) (*models.RentalPayment, error) {
	query := `SELECT ` + rentalPaymentColumns + ` FROM rental_payments WHERE lower(rental_id) = lower($1)`

	p, err := scanRentalPayment(r.DB.QueryRow(ctx, query, rentalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns payments in insertion order with optional filters
func (r *RentalPaymentRepository) List(ctx context.Context, filter *models.RentalPaymentFilter) ([]*models.RentalPayment, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter != nil {
		if s := strings.TrimSpace(filter.Search); s != "" {
			whereClause += fmt.Sprintf(
				" AND (customer_name ILIKE $%d OR COALESCE(company, '') ILIKE $%d OR vehicle_registration ILIKE $%d)",
				argNum, argNum, argNum)
			args = append(args, likePattern(s))
			argNum++
		}

		if s := strings.TrimSpace(filter.Customer); s != "" {
			whereClause += fmt.Sprintf(" AND customer_name ILIKE $%d", argNum)
			args = append(args, likePattern(s))
			argNum++
		}

		if s := strings.TrimSpace(filter.Company); s != "" {
			whereClause += fmt.Sprintf(" AND COALESCE(company, '') ILIKE $%d", argNum)
			args = append(args, likePattern(s))
			argNum++
		}

		if s := strings.TrimSpace(filter.Vehicle); s != "" {
			whereClause += fmt.Sprintf(" AND vehicle_registration ILIKE $%d", argNum)
			args = append(args, likePattern(s))
			argNum++
		}

		if filter.Status != "" {
			whereClause += fmt.Sprintf(" AND payment_status = $%d", argNum)
			args = append(args, string(filter.Status))
			argNum++
		}
	}

	query := `SELECT ` + rentalPaymentColumns + ` FROM rental_payments ` + whereClause + ` ORDER BY created_at, id`

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.RentalPayment
	for rows.Next() {
		p, err := scanRentalPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// UpdateStatus writes the status fields of p only if the row is still in
// the expected status. A lost race returns ErrStatusConflict.
func (r *RentalPaymentRepository) UpdateStatus(ctx context.Context, p *models.RentalPayment, expected models.PaymentStatus) error {
	query := `
		UPDATE rental_payments
		SET payment_status = $2,
		    paid_date = $3,
		    payment_method = $4,
		    transaction_id = $5,
		    updated_at = NOW()
		WHERE lower(rental_id) = lower($1) AND payment_status = $6
		RETURNING updated_at
	`

	err := r.DB.QueryRow(ctx, query,
		p.RentalID,
		string(p.PaymentStatus),
		p.PaidDate,
		p.PaymentMethod,
		p.TransactionID,
		string(expected),
	).Scan(&p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStatusConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	return nil
}

// likePattern escapes ILIKE wildcards in user input and wraps it for a substring match
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
