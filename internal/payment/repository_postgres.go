// Package payment provides the PostgreSQL-backed payment ledger.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
	"github.com/gatherly-app/gatherly/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Insert adds a new ledger record.
func (r *PostgresRepository) Insert(ctx context.Context, record *Record) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_records", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}

	query := `
		INSERT INTO payment_records
			(id, run_id, user_id, rail, mode, amount, discount_amount, status, confirmation_id, order_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.RunID, record.UserID, string(record.Rail), string(record.Mode),
		record.Amount, record.DiscountAmount, record.Status,
		record.ConfirmationID, record.OrderID, record.FailureReason,
	)
	if err != nil {
		r.logger.Error("failed to insert payment record",
			slog.String("record_id", record.ID),
			slog.String("run_id", record.RunID),
			slog.String("error", err.Error()))
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

// GetByID retrieves a ledger record by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_records", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, run_id, user_id, rail, mode, amount, discount_amount, status, confirmation_id, order_id, failure_reason, created_at, updated_at
		FROM payment_records WHERE id = $1
	`
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, id))
	return record, err
}

// GetByOrderID retrieves a ledger record by its redirect order ID.
func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) (*Record, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_records", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, run_id, user_id, rail, mode, amount, discount_amount, status, confirmation_id, order_id, failure_reason, created_at, updated_at
		FROM payment_records WHERE order_id = $1
	`
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, orderID))
	return record, err
}

// MarkSucceeded transitions a record to succeeded. The WHERE clause makes
// the transition single-shot: a record already in a terminal status is left
// alone and the call reports false.
func (r *PostgresRepository) MarkSucceeded(ctx context.Context, id, confirmationID string) (bool, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_records", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	query := `
		UPDATE payment_records
		SET status = $2, confirmation_id = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, StatusSucceeded, confirmationID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	return affected == 1, nil
}

// MarkFailed transitions a record to failed, single-shot like MarkSucceeded.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_records", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	query := `
		UPDATE payment_records
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, StatusFailed, reason, StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) scanRecord(row *sql.Row) (*Record, error) {
	var record Record
	var rail, mode string
	err := row.Scan(
		&record.ID, &record.RunID, &record.UserID, &rail, &mode,
		&record.Amount, &record.DiscountAmount, &record.Status,
		&record.ConfirmationID, &record.OrderID, &record.FailureReason,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment record: %w", err)
	}
	record.Rail = session.Rail(rail)
	record.Mode = appserver.PaymentMode(mode)
	return &record, nil
}
