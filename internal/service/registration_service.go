package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCompletedExists rejects a new draft when a completed registration
// already exists for the email
var ErrCompletedExists = errors.New("a completed registration already exists for this email")

// RegistrationService handles registration draft creation
type RegistrationService struct {
	store   RegistrationStore
	gateway PaymentGateway
	feeINR  float64
	feeUSD  float64
	logger  *zap.Logger
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(store RegistrationStore, gateway PaymentGateway, feeINR, feeUSD float64) *RegistrationService {
	return &RegistrationService{
		store:   store,
		gateway: gateway,
		feeINR:  feeINR,
		feeUSD:  feeUSD,
		logger:  util.GetLogger(),
	}
}

// AddonSelection is the optional add-on chosen at draft creation
type AddonSelection struct {
	ID       string `json:"id" binding:"required"`
	Title    string `json:"title"`
	PriceINR int64  `json:"price_inr"`
	PriceUSD int64  `json:"price_usd"`
}

// CreateRegistrationRequest is the draft creation payload
type CreateRegistrationRequest struct {
	Name            string          `json:"name" binding:"required"`
	Email           string          `json:"email" binding:"required,email"`
	Phone           string          `json:"phone"`
	School          string          `json:"school"`
	Grade           string          `json:"grade"`
	Section         string          `json:"section"`
	DOB             string          `json:"dob"`
	City            string          `json:"city"`
	IsOverseas      bool            `json:"is_overseas"`
	RegistrationFee float64         `json:"registration_fee"`
	Addon           *AddonSelection `json:"addon,omitempty"`
}

// CreateRegistrationResponse carries the draft and the gateway order the
// client needs to open checkout
type CreateRegistrationResponse struct {
	Registration *models.Registration `json:"registration"`
	OrderID      string               `json:"order_id"`
	Amount       int64                `json:"amount"`
	Currency     string               `json:"currency"`
	Receipt      string               `json:"receipt"`
}

// CreateRegistration creates a registration draft and its gateway order.
// Stale pending drafts for the same email are deleted first; an email with a
// completed registration is rejected.
func (s *RegistrationService) CreateRegistration(ctx context.Context, req *CreateRegistrationRequest) (*CreateRegistrationResponse, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.CreateRegistration")
	defer span.End()

	completed, err := s.store.HasCompletedRegistration(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing registrations: %w", err)
	}
	if completed {
		util.RegistrationsFailedTotal.WithLabelValues("already_completed").Inc()
		return nil, ErrCompletedExists
	}

	deleted, err := s.store.DeletePendingByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up pending drafts: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Deleted stale pending drafts",
			zap.String("email", req.Email),
			zap.Int64("count", deleted))
	}

	fee := req.RegistrationFee
	if fee <= 0 {
		if req.IsOverseas {
			fee = s.feeUSD
		} else {
			fee = s.feeINR
		}
	}

	var addonPrice float64
	if req.Addon != nil {
		if req.IsOverseas {
			addonPrice = float64(req.Addon.PriceUSD)
		} else {
			addonPrice = float64(req.Addon.PriceINR)
		}
	}

	amount, currency := pricing.OrderAmount(fee, addonPrice, req.IsOverseas)

	reg := &models.Registration{
		ID:                uuid.New().String(),
		CorrelationID:     uuid.New().String(),
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		School:            req.School,
		Grade:             req.Grade,
		Section:           req.Section,
		City:              req.City,
		IsOverseas:        req.IsOverseas,
		RegistrationFee:   fee,
		OrderAmountMinor:  amount,
		OrderCurrency:     currency,
		PaymentStatus:     models.PaymentStatusPending,
		AddonCreditStatus: models.CreditStatusNone,
	}

	if req.DOB != "" {
		if dob, err := time.Parse("2006-01-02", req.DOB); err == nil {
			reg.DOB = &dob
		}
	}

	if req.Addon != nil {
		reg.AddonID = &req.Addon.ID
		reg.AddonTitle = &req.Addon.Title
		reg.AddonPriceINR = &req.Addon.PriceINR
		reg.AddonPriceUSD = &req.Addon.PriceUSD
	}

	receipt := fmt.Sprintf("rcpt_%s", reg.ID[:8])

	order, err := s.gateway.CreateOrder(ctx, amount, currency, reg.CorrelationID, receipt)
	if err != nil {
		util.RegistrationsFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}
	reg.GatewayOrderID = order.ID

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		util.RegistrationsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to persist registration draft: %w", err)
	}

	util.RegistrationsCreatedTotal.Inc()
	s.logger.Info("Registration draft created",
		zap.String("registration_id", reg.ID),
		zap.String("order_id", order.ID),
		zap.Int64("amount", amount),
		zap.String("currency", currency))

	return &CreateRegistrationResponse{
		Registration: reg,
		OrderID:      order.ID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Receipt:      order.Receipt,
	}, nil
}

// GetRegistration retrieves a registration by ID
func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	return s.store.GetRegistrationByID(ctx, id)
}
