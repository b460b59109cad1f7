package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"imageforge-backend/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewDatabaseClientFromDB wraps an already opened handle.
func NewDatabaseClientFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (d *DatabaseClient) DB() *sql.DB {
	return d.db
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// TryDebit takes amount credits from the user's balance if, and only if, the
// balance covers it. The check and the decrement are one conditional UPDATE,
// so concurrent callers can never overdraw. The debit is recorded under
// attemptID in the same statement. It returns false when the balance is
// insufficient or the user has no credit row.
func (d *DatabaseClient) TryDebit(ctx context.Context, userID, attemptID uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var recorded uuid.UUID
	err := d.db.QueryRowContext(ctx, `
		WITH debited AS (
			UPDATE user_credits
			SET balance = balance - $3, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $3
			RETURNING user_id
		)
		INSERT INTO credit_transactions (attempt_id, user_id, kind, amount)
		SELECT $2, user_id, 'debit', $3 FROM debited
		RETURNING attempt_id
	`, userID, attemptID, amount).Scan(&recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to debit credits: %w", err)
	}

	return true, nil
}

// Refund returns the credits taken by the debit recorded under attemptID.
// The refund row is unique per attempt, so repeated or concurrent calls
// restore the balance at most once. It reports whether this call performed
// the refund.
func (d *DatabaseClient) Refund(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	var balance int
	err := d.db.QueryRowContext(ctx, `
		WITH refund AS (
			INSERT INTO credit_transactions (attempt_id, user_id, kind, amount)
			SELECT attempt_id, user_id, 'refund', amount
			FROM credit_transactions
			WHERE attempt_id = $1 AND kind = 'debit'
			ON CONFLICT (attempt_id, kind) DO NOTHING
			RETURNING user_id, amount
		)
		UPDATE user_credits c
		SET balance = c.balance + refund.amount, updated_at = NOW()
		FROM refund
		WHERE c.user_id = refund.user_id
		RETURNING c.balance
	`, attemptID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to refund credits: %w", err)
	}

	return true, nil
}

// GetBalance returns the user's current balance; a user without a credit
// row has zero.
func (d *DatabaseClient) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := d.db.QueryRowContext(ctx, `
		SELECT balance FROM user_credits WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

func (d *DatabaseClient) ListCreditTransactions(ctx context.Context, attemptID uuid.UUID) ([]models.CreditTransaction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, attempt_id, user_id, kind, amount, created_at
		FROM credit_transactions
		WHERE attempt_id = $1
		ORDER BY id ASC
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.CreditTransaction
	for rows.Next() {
		var tx models.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.AttemptID, &tx.UserID, &tx.Kind, &tx.Amount, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (d *DatabaseClient) CreateImage(ctx context.Context, userID uuid.UUID, prompt, imageURL string) (*models.GeneratedImage, error) {
	var image models.GeneratedImage
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO images (user_id, prompt, image_url)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, prompt, image_url, created_at
	`, userID, prompt, imageURL).Scan(
		&image.ID, &image.UserID, &image.Prompt, &image.ImageURL, &image.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}

	return &image, nil
}

func (d *DatabaseClient) ListImages(ctx context.Context, userID uuid.UUID, limit int) ([]models.GeneratedImage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, prompt, image_url, created_at
		FROM images
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []models.GeneratedImage
	for rows.Next() {
		var image models.GeneratedImage
		if err := rows.Scan(&image.ID, &image.UserID, &image.Prompt, &image.ImageURL, &image.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, image)
	}

	return images, rows.Err()
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
