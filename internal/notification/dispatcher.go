// Package notification delivers best-effort confirmation messages over email
// and a messaging provider. Nothing in this package fails its caller: every
// transport or remote error degrades to a false sent flag.
package notification

import (
	"context"
	"errors"

	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

const confirmationSubject = "Registration confirmed"

// passwordPlaceholder is shown when the registrant already had a platform
// account and no one-time password was generated
const passwordPlaceholder = "your existing account password"

// Result aggregates the two independent delivery attempts
type Result struct {
	MailSent bool `json:"mail_sent"`
	WaSent   bool `json:"wa_sent"`
}

// Dispatcher fans a confirmation out to email and messaging
type Dispatcher struct {
	email      *EmailClient
	messaging  *MessagingClient
	opsAddress string
	logger     *zap.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(email *EmailClient, messaging *MessagingClient, opsAddress string) *Dispatcher {
	return &Dispatcher{
		email:      email,
		messaging:  messaging,
		opsAddress: opsAddress,
		logger:     util.GetLogger(),
	}
}

// Dispatch sends the confirmation email batch and the messaging notification
// as two independent best-effort attempts. It never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, reg *models.Registration, password string) Result {
	return Result{
		MailSent: d.sendEmail(ctx, reg, password),
		WaSent:   d.sendMessaging(ctx, reg),
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, reg *models.Registration, password string) bool {
	if password == "" {
		password = passwordPlaceholder
	}

	addonTitle := ""
	if reg.AddonTitle != nil {
		addonTitle = *reg.AddonTitle
	}

	fields := map[string]string{
		"name":        reg.Name,
		"grade":       reg.Grade,
		"email":       reg.Email,
		"addon_title": addonTitle,
		"password":    password,
	}

	recipients := []EmailRecipient{
		{Address: reg.Email, MergeFields: fields},
		{Address: d.opsAddress, MergeFields: fields},
	}

	if err := d.email.SendBatch(ctx, confirmationSubject, TemplateDefault, recipients); err != nil {
		util.NotificationsFailedTotal.WithLabelValues("email").Inc()
		if !errors.Is(err, ErrEmailNotConfigured) {
			d.logger.Error("Failed to send confirmation email",
				zap.String("registration_id", reg.ID),
				zap.Error(err))
		}
		return false
	}

	util.NotificationsSentTotal.WithLabelValues("email").Inc()
	return true
}

func (d *Dispatcher) sendMessaging(ctx context.Context, reg *models.Registration) bool {
	if reg.Phone == "" {
		return false
	}

	addonID := ""
	if reg.AddonID != nil {
		addonID = *reg.AddonID
	}

	templateID := TemplateForTier(addonID)
	params := []string{reg.Name, reg.Grade}

	if err := d.messaging.Send(ctx, templateID, reg.Phone, params); err != nil {
		util.NotificationsFailedTotal.WithLabelValues("messaging").Inc()
		if !errors.Is(err, ErrMessagingNotConfigured) {
			d.logger.Error("Failed to send messaging notification",
				zap.String("registration_id", reg.ID),
				zap.Error(err))
		}
		return false
	}

	util.NotificationsSentTotal.WithLabelValues("messaging").Inc()
	return true
}
