package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrations_created_total",
		Help: "Total number of registration drafts created",
	})

	RegistrationsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrations_completed_total",
		Help: "Total number of registrations completed and published",
	})

	RegistrationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_rejected_total",
		Help: "Total number of rejected payment events",
	}, []string{"reason"})

	RegistrationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_failed_total",
		Help: "Total number of failed registration attempts",
	}, []string{"reason"})

	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Total number of duplicate payment-captured deliveries no-opd",
	})

	WebhookUnknownEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_unknown_events_total",
		Help: "Total number of webhook events acknowledged without processing",
	})

	GatewayOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_orders_created_total",
		Help: "Total number of payment gateway orders created",
	})

	GatewayOrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_order_latency_seconds",
		Help:    "Latency of payment gateway order creation",
		Buckets: prometheus.DefBuckets,
	})

	AccountsProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_provisioned_total",
		Help: "Total number of learning platform accounts created",
	})

	ProvisioningFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_failed_total",
		Help: "Total number of failed provisioning attempts",
	}, []string{"reason"})

	AddonCreditsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "addon_credits_granted_total",
		Help: "Total number of addon credit grants submitted",
	})

	AddonCreditsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "addon_credits_failed_total",
		Help: "Total number of failed addon credit grants",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications sent",
	}, []string{"channel"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of failed notification attempts",
	}, []string{"channel"})

	BulkRowsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_rows_processed_total",
		Help: "Total number of bulk import rows processed",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
