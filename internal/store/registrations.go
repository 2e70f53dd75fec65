package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"registration-service/internal/models"
)

// CreateRegistration inserts a new registration draft
func (s *Store) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (
			id, correlation_id, name, email, phone, school, grade, section,
			dob, city, is_overseas,
			addon_id, addon_title, addon_price_inr, addon_price_usd,
			registration_fee, order_amount_minor, order_currency,
			gateway_order_id, payment_id, payment_status, payment_method,
			lms_account_id, addon_credit_status, email_sent, messaging_sent, published
		) VALUES (
			:id, :correlation_id, :name, :email, :phone, :school, :grade, :section,
			:dob, :city, :is_overseas,
			:addon_id, :addon_title, :addon_price_inr, :addon_price_usd,
			:registration_fee, :order_amount_minor, :order_currency,
			:gateway_order_id, :payment_id, :payment_status, :payment_method,
			:lms_account_id, :addon_credit_status, :email_sent, :messaging_sent, :published
		)`

	_, err := s.db.NamedExecContext(ctx, query, reg)
	if err != nil {
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	return nil
}

// GetRegistrationByID retrieves a registration by ID
func (s *Store) GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg, "SELECT * FROM registrations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationByCorrelationID resolves a registration from the correlation
// id embedded in the gateway order metadata. Returns (nil, nil) when no
// registration matches, so unknown events can be acknowledged as no-ops.
func (s *Store) GetRegistrationByCorrelationID(ctx context.Context, correlationID string) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg, "SELECT * FROM registrations WHERE correlation_id = $1", correlationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationByGatewayOrderID resolves a registration from its gateway order id
func (s *Store) GetRegistrationByGatewayOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg, "SELECT * FROM registrations WHERE gateway_order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationByEmail retrieves the most recent registration for an email
func (s *Store) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg,
		"SELECT * FROM registrations WHERE email = $1 ORDER BY created_at DESC LIMIT 1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// HasCompletedRegistration reports whether a completed registration exists for an email
func (s *Store) HasCompletedRegistration(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM registrations WHERE email = $1 AND payment_status = $2)",
		email, models.PaymentStatusCompleted)
	return exists, err
}

// DeletePendingByEmail removes stale pending drafts for an email before a
// fresh draft is created. Completed registrations are never touched.
func (s *Store) DeletePendingByEmail(ctx context.Context, email string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM registrations WHERE email = $1 AND payment_status = $2",
		email, models.PaymentStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompletePayment marks a registration completed and published. The status
// condition makes the write atomic with the idempotency check: a duplicate
// delivery affects zero rows and reports applied=false.
func (s *Store) CompletePayment(ctx context.Context, id, paymentID, method string, capturedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET payment_id = $1, payment_status = $2, payment_method = $3,
			captured_at = $4, verified_at = NOW(), published = TRUE, updated_at = NOW()
		WHERE id = $5 AND payment_status <> $2`,
		paymentID, models.PaymentStatusCompleted, method, capturedAt, id)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkRejected records a failed integrity check. Never downgrades a
// completed registration.
func (s *Store) MarkRejected(ctx context.Context, id, paymentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET payment_id = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3 AND payment_status <> $4`,
		paymentID, models.PaymentStatusFailed, id, models.PaymentStatusCompleted)
	return err
}

// SetLMSAccountID records the provisioned external account id
func (s *Store) SetLMSAccountID(ctx context.Context, id, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE registrations SET lms_account_id = $1, updated_at = NOW() WHERE id = $2",
		accountID, id)
	return err
}

// SetAddonCreditStatus records the outcome of an addon credit grant
func (s *Store) SetAddonCreditStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE registrations SET addon_credit_status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	return err
}

// SetNotificationFlags updates only the notification flags. Payment fields
// and published stay untouched so a late background task cannot resurrect a
// rejected registration.
func (s *Store) SetNotificationFlags(ctx context.Context, id string, emailSent, messagingSent bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE registrations SET email_sent = $1, messaging_sent = $2, updated_at = NOW() WHERE id = $3",
		emailSent, messagingSent, id)
	return err
}

// UpsertCompleted writes a bulk-imported registration directly in the
// completed/published state: update if a row exists for the email, insert
// otherwise. Runs in a transaction so concurrent imports of the same email
// do not create duplicates.
func (s *Store) UpsertCompleted(ctx context.Context, reg *models.Registration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingID string
	err = tx.GetContext(ctx, &existingID,
		"SELECT id FROM registrations WHERE email = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE", reg.Email)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up registration for upsert: %w", err)
	}

	if err == sql.ErrNoRows {
		query := `
			INSERT INTO registrations (
				id, correlation_id, name, email, phone, school, grade, section,
				dob, city, is_overseas,
				addon_id, addon_title, addon_price_inr, addon_price_usd,
				registration_fee, order_amount_minor, order_currency,
				gateway_order_id, payment_id, payment_status, payment_method,
				lms_account_id, addon_credit_status, email_sent, messaging_sent, published
			) VALUES (
				:id, :correlation_id, :name, :email, :phone, :school, :grade, :section,
				:dob, :city, :is_overseas,
				:addon_id, :addon_title, :addon_price_inr, :addon_price_usd,
				:registration_fee, :order_amount_minor, :order_currency,
				:gateway_order_id, :payment_id, :payment_status, :payment_method,
				:lms_account_id, :addon_credit_status, :email_sent, :messaging_sent, :published
			)`
		if _, err := tx.NamedExecContext(ctx, query, reg); err != nil {
			return fmt.Errorf("failed to insert bulk registration: %w", err)
		}
		return tx.Commit()
	}

	reg.ID = existingID
	query := `
		UPDATE registrations
		SET name = :name, phone = :phone, school = :school, grade = :grade,
			section = :section, dob = :dob, city = :city, is_overseas = :is_overseas,
			addon_id = :addon_id, addon_title = :addon_title,
			payment_id = :payment_id, payment_status = :payment_status,
			published = :published, updated_at = NOW()
		WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, reg); err != nil {
		return fmt.Errorf("failed to update bulk registration: %w", err)
	}
	return tx.Commit()
}
