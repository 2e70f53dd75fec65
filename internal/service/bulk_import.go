package service

import (
	"context"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BulkImportService replays the fulfillment pipeline over offline-reconciled
// rows. Rows assert an already-captured payment, so they are written directly
// as completed/published and skip the draft and gateway-verification states.
// The bulk endpoint is a trusted channel; row payment ids carry no signature
// proof and never touch gateway verification.
type BulkImportService struct {
	store       RegistrationStore
	fulfillment *FulfillmentService
	events      EventPublisher
	feeINR      float64
	feeUSD      float64
	logger      *zap.Logger
}

// NewBulkImportService creates a new bulk import service
func NewBulkImportService(store RegistrationStore, fulfillment *FulfillmentService, events EventPublisher, feeINR, feeUSD float64) *BulkImportService {
	return &BulkImportService{
		store:       store,
		fulfillment: fulfillment,
		events:      events,
		feeINR:      feeINR,
		feeUSD:      feeUSD,
		logger:      util.GetLogger(),
	}
}

// ProcessBulkImport processes each row independently: a failing row is
// counted and recorded, and processing continues with the next row. Row
// numbers in errors are file line numbers (the header is line 1).
func (b *BulkImportService) ProcessBulkImport(ctx context.Context, rows []models.BulkRow) *models.BulkImportResult {
	ctx, span := util.StartSpan(ctx, "BulkImportService.ProcessBulkImport")
	defer span.End()

	result := &models.BulkImportResult{
		Total:  len(rows),
		Errors: []models.RowError{},
	}

	for i, row := range rows {
		lineNum := i + 2

		if err := b.processRow(ctx, row); err != nil {
			util.BulkRowsProcessedTotal.WithLabelValues("failed").Inc()
			result.Failed++
			result.Errors = append(result.Errors, models.RowError{
				Row:     lineNum,
				Email:   row.Email,
				Message: err.Error(),
			})
			b.logger.Warn("Bulk import row failed",
				zap.Int("row", lineNum),
				zap.String("email", row.Email),
				zap.Error(err))
			continue
		}

		util.BulkRowsProcessedTotal.WithLabelValues("successful").Inc()
		result.Successful++
	}

	b.publishFinished(ctx, result)

	b.logger.Info("Bulk import finished",
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed))

	return result
}

func (b *BulkImportService) processRow(ctx context.Context, row models.BulkRow) error {
	if err := validateRow(row); err != nil {
		return err
	}

	fee := b.feeINR
	if row.IsOverseas {
		fee = b.feeUSD
	}

	reg := &models.Registration{
		ID:                uuid.New().String(),
		CorrelationID:     uuid.New().String(),
		Name:              row.Name,
		Email:             row.Email,
		Phone:             row.Phone,
		School:            row.School,
		Grade:             row.Grade,
		Section:           row.Section,
		City:              row.City,
		IsOverseas:        row.IsOverseas,
		RegistrationFee:   fee,
		PaymentID:         row.PaymentID,
		PaymentStatus:     models.PaymentStatusCompleted,
		PaymentMethod:     "bulk_import",
		Published:         true,
		AddonCreditStatus: models.CreditStatusNone,
	}

	if row.AddonID != "" {
		addonID := row.AddonID
		addonTitle := row.AddonTitle
		reg.AddonID = &addonID
		reg.AddonTitle = &addonTitle
	}

	if row.DOB != "" {
		if dob, err := time.Parse("2006-01-02", row.DOB); err == nil {
			reg.DOB = &dob
		}
	}

	// Bulk rows carry no addon price; the recorded amount covers the fee only.
	reg.OrderAmountMinor, reg.OrderCurrency = pricing.OrderAmount(fee, 0, row.IsOverseas)

	if err := b.store.UpsertCompleted(ctx, reg); err != nil {
		return fmt.Errorf("failed to upsert registration: %w", err)
	}

	// Same downstream steps as the webhook path: provisioning and crediting
	// are best-effort, notification dispatch runs in the background.
	password := b.fulfillment.provisionAccount(ctx, reg)
	b.fulfillment.grantAddonCredits(ctx, reg)
	b.fulfillment.scheduleNotifications(reg, password)

	return nil
}

func validateRow(row models.BulkRow) error {
	switch {
	case row.Name == "":
		return fmt.Errorf("missing required field: name")
	case row.Email == "":
		return fmt.Errorf("missing required field: email")
	case row.Phone == "":
		return fmt.Errorf("missing required field: phone")
	case row.School == "":
		return fmt.Errorf("missing required field: school")
	case row.Grade == "":
		return fmt.Errorf("missing required field: grade")
	case row.Section == "":
		return fmt.Errorf("missing required field: section")
	case row.PaymentID == "":
		return fmt.Errorf("missing required field: payment_id")
	}
	return nil
}

func (b *BulkImportService) publishFinished(ctx context.Context, result *models.BulkImportResult) {
	event := &models.BulkImportFinishedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBulkImportFinished,
			Timestamp: time.Now(),
		},
		Total:      result.Total,
		Successful: result.Successful,
		Failed:     result.Failed,
	}

	if err := b.events.PublishBulkImportFinished(ctx, event); err != nil {
		b.logger.Error("Failed to publish BulkImportFinished event", zap.Error(err))
	}
}
