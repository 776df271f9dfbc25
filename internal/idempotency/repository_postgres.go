// Package idempotency provides repository implementations for idempotency key storage.
package idempotency

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRepository implements Repository backed by Postgres so cached
// responses survive restarts and are shared across replicas.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres idempotency key repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get retrieves an idempotency key by its key value.
// Returns ErrKeyNotFound if the key doesn't exist.
func (r *PostgresRepository) Get(key string) (*IdempotencyKey, error) {
	query := `
		SELECT key, method, route, created_at, payment_id, response_hash,
		       status, response_body, response_status_code
		FROM idempotency_keys
		WHERE key = $1`

	record := &IdempotencyKey{}
	err := r.db.QueryRow(query, key).Scan(
		&record.Key,
		&record.Method,
		&record.Route,
		&record.CreatedAt,
		&record.PaymentID,
		&record.ResponseHash,
		&record.Status,
		&record.ResponseBody,
		&record.ResponseStatusCode,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return record, nil
}

// Store saves a new idempotency key.
// Returns ErrKeyExists if the key already exists.
func (r *PostgresRepository) Store(record *IdempotencyKey) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO idempotency_keys
			(key, method, route, created_at, payment_id, response_hash,
			 status, response_body, response_status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		record.Key,
		record.Method,
		record.Route,
		record.CreatedAt,
		record.PaymentID,
		record.ResponseHash,
		record.Status,
		record.ResponseBody,
		record.ResponseStatusCode,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// Complete transitions an existing key to StatusCompleted and records the
// response for replay.
func (r *PostgresRepository) Complete(record *IdempotencyKey) error {
	query := `
		UPDATE idempotency_keys
		SET status = $2, response_hash = $3, response_body = $4,
		    response_status_code = $5, payment_id = $6
		WHERE key = $1`

	result, err := r.db.Exec(query,
		record.Key,
		StatusCompleted,
		record.ResponseHash,
		record.ResponseBody,
		record.ResponseStatusCode,
		record.PaymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Delete removes a key.
func (r *PostgresRepository) Delete(key string) error {
	if _, err := r.db.Exec(`DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan removes idempotency keys older than the specified duration.
// Returns the number of keys deleted.
func (r *PostgresRepository) DeleteOlderThan(duration time.Duration) (int64, error) {
	cutoff := time.Now().Add(-duration)

	result, err := r.db.Exec(`DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old idempotency keys: %w", err)
	}
	return result.RowsAffected()
}
