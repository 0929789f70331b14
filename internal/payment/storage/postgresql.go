package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a payment store on an existing connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating payment storage with existing database connection")

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized successfully with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payments table if not exists")

	// merchant_order_id is UNIQUE: it is the idempotency key shared with the
	// gateway, one row per attempt.
	paymentsQuery := `
    CREATE TABLE IF NOT EXISTS payments (
        payment_id VARCHAR(64) PRIMARY KEY,
        user_id VARCHAR(64) NOT NULL,
        checkout_intent_id VARCHAR(64),
        amount BIGINT NOT NULL,
        currency VARCHAR(8) NOT NULL DEFAULT 'INR',
        merchant_order_id VARCHAR(64) NOT NULL UNIQUE,
        status VARCHAR(20) NOT NULL,
        gateway_transaction_id VARCHAR(128),
        payment_method VARCHAR(50),
        webhook_processed BOOLEAN NOT NULL DEFAULT FALSE,
        paid_at TIMESTAMP,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(paymentsQuery); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payments_intent_id ON payments(checkout_intent_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment tables and indexes ready")
	return nil
}

const paymentColumns = `
    payment_id, user_id, checkout_intent_id, amount, currency, merchant_order_id,
    status, gateway_transaction_id, payment_method, webhook_processed, paid_at,
    created_at, updated_at
`

func scanPayment(row interface{ Scan(...interface{}) error }) (*models.Payment, error) {
	payment := &models.Payment{}
	var intentID, txnID, method sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&payment.PaymentID, &payment.UserID, &intentID, &payment.Amount,
		&payment.Currency, &payment.MerchantOrderID, &payment.Status,
		&txnID, &method, &payment.WebhookProcessed, &paidAt,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	payment.CheckoutIntentID = intentID.String
	payment.GatewayTransactionID = txnID.String
	payment.PaymentMethod = method.String
	payment.PaidAt = paidAt.Time
	return payment, nil
}

// SavePayment inserts a new payment attempt.
func (s *PostgreSQLStore) SavePayment(ctx context.Context, payment *models.Payment) error {
	s.log.LogDatabase("INSERT", "postgresql", fmt.Sprintf("Saving payment %s", payment.PaymentID))

	query := `
    INSERT INTO payments (
        payment_id, user_id, checkout_intent_id, amount, currency, merchant_order_id,
        status, gateway_transaction_id, payment_method, webhook_processed, paid_at,
        created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `

	_, err := s.db.ExecContext(ctx, query,
		payment.PaymentID, payment.UserID, nullStr(payment.CheckoutIntentID),
		payment.Amount, payment.Currency, payment.MerchantOrderID,
		payment.Status, nullStr(payment.GatewayTransactionID), nullStr(payment.PaymentMethod),
		payment.WebhookProcessed, nullTime(payment.PaidAt),
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Payment %s saved successfully", payment.PaymentID))
	return nil
}

// GetPayment retrieves a payment by ID.
func (s *PostgreSQLStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	payment, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.LogDatabase("NOT_FOUND", "postgresql", fmt.Sprintf("Payment %s not found", id))
			return nil, apperr.ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// GetPaymentByMerchantOrderID looks a payment up by the gateway-facing key.
// This is the lookup webhooks drive.
func (s *PostgreSQLStore) GetPaymentByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE merchant_order_id = $1`

	payment, err := scanPayment(s.db.QueryRowContext(ctx, query, merchantOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.LogDatabase("NOT_FOUND", "postgresql", fmt.Sprintf("No payment for merchant order %s", merchantOrderID))
			return nil, apperr.ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment for merchant order %s: %s", merchantOrderID, err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// GetPaymentByIntentID returns the most recent attempt for an intent.
func (s *PostgreSQLStore) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_intent_id = $1 ORDER BY created_at DESC LIMIT 1`

	payment, err := scanPayment(s.db.QueryRowContext(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment for intent %s: %s", intentID, err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// UpdatePayment persists reconciliation results.
func (s *PostgreSQLStore) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	s.log.LogDatabase("UPDATE", "postgresql", fmt.Sprintf("Updating payment %s", payment.PaymentID))

	query := `
    UPDATE payments SET
        status = $1, gateway_transaction_id = $2, payment_method = $3,
        webhook_processed = $4, paid_at = $5, updated_at = $6
    WHERE payment_id = $7
    `

	_, err := s.db.ExecContext(ctx, query,
		payment.Status, nullStr(payment.GatewayTransactionID), nullStr(payment.PaymentMethod),
		payment.WebhookProcessed, nullTime(payment.PaidAt), payment.UpdatedAt,
		payment.PaymentID,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

// MarkWebhookProcessed claims the one processing slot for a payment's
// webhook. The WHERE on the flag makes the duplicate delivery lose.
func (s *PostgreSQLStore) MarkWebhookProcessed(ctx context.Context, paymentID string) (bool, error) {
	query := `
    UPDATE payments SET webhook_processed = TRUE, updated_at = CURRENT_TIMESTAMP
    WHERE payment_id = $1 AND webhook_processed = FALSE
    `

	res, err := s.db.ExecContext(ctx, query, paymentID)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to mark webhook processed for %s: %s", paymentID, err.Error()))
		return false, fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPayments retrieves a user's payments, newest first.
func (s *PostgreSQLStore) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
    WHERE user_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payments: %s", err.Error()))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to scan payment row: %s", err.Error()))
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
