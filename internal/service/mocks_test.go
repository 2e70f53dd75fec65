package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/provisioning"
	"registration-service/internal/worker"
)

// fakeStore is an in-memory RegistrationStore with the same conditional
// update semantics as the SQL store
type fakeStore struct {
	mu            sync.Mutex
	registrations map[string]*models.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{registrations: make(map[string]*models.Registration)}
}

func (s *fakeStore) put(reg *models.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *reg
	s.registrations[reg.ID] = &cp
}

func (s *fakeStore) get(id string) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[id]; ok {
		cp := *reg
		return &cp
	}
	return nil
}

func (s *fakeStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	s.put(reg)
	return nil
}

func (s *fakeStore) GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error) {
	if reg := s.get(id); reg != nil {
		return reg, nil
	}
	return nil, errors.New("registration not found")
}

func (s *fakeStore) findBy(match func(*models.Registration) bool) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if match(reg) {
			cp := *reg
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) GetRegistrationByCorrelationID(ctx context.Context, correlationID string) (*models.Registration, error) {
	return s.findBy(func(r *models.Registration) bool { return r.CorrelationID == correlationID }), nil
}

func (s *fakeStore) GetRegistrationByGatewayOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	return s.findBy(func(r *models.Registration) bool { return r.GatewayOrderID == orderID }), nil
}

func (s *fakeStore) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	return s.findBy(func(r *models.Registration) bool { return r.Email == email }), nil
}

func (s *fakeStore) HasCompletedRegistration(ctx context.Context, email string) (bool, error) {
	reg := s.findBy(func(r *models.Registration) bool {
		return r.Email == email && r.PaymentStatus == models.PaymentStatusCompleted
	})
	return reg != nil, nil
}

func (s *fakeStore) DeletePendingByEmail(ctx context.Context, email string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, reg := range s.registrations {
		if reg.Email == email && reg.PaymentStatus == models.PaymentStatusPending {
			delete(s.registrations, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) CompletePayment(ctx context.Context, id, paymentID, method string, capturedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.PaymentStatus == models.PaymentStatusCompleted {
		return false, nil
	}
	now := time.Now()
	reg.PaymentID = paymentID
	reg.PaymentStatus = models.PaymentStatusCompleted
	reg.PaymentMethod = method
	reg.CapturedAt = &capturedAt
	reg.VerifiedAt = &now
	reg.Published = true
	return true, nil
}

func (s *fakeStore) MarkRejected(ctx context.Context, id, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.PaymentStatus == models.PaymentStatusCompleted {
		return nil
	}
	reg.PaymentID = paymentID
	reg.PaymentStatus = models.PaymentStatusFailed
	return nil
}

func (s *fakeStore) SetLMSAccountID(ctx context.Context, id, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[id]; ok {
		reg.LMSAccountID = &accountID
	}
	return nil
}

func (s *fakeStore) SetAddonCreditStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[id]; ok {
		reg.AddonCreditStatus = status
	}
	return nil
}

func (s *fakeStore) UpsertCompleted(ctx context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.registrations {
		if existing.Email == reg.Email {
			reg.ID = id
			cp := *reg
			s.registrations[id] = &cp
			return nil
		}
	}
	cp := *reg
	s.registrations[reg.ID] = &cp
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations)
}

// fakeGateway answers signature checks against canned valid signatures
type fakeGateway struct {
	mu              sync.Mutex
	orderSeq        int
	failCreateOrder bool
	createdOrders   []gateway.OrderRef
}

const (
	validWebhookSig  = "valid-webhook-sig"
	validCheckoutSig = "valid-checkout-sig"
)

func (g *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, correlationID, receipt string) (*gateway.OrderRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreateOrder {
		return nil, errors.New("gateway unavailable")
	}
	g.orderSeq++
	order := gateway.OrderRef{
		ID:       fmt.Sprintf("order_%d", g.orderSeq),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
	}
	g.createdOrders = append(g.createdOrders, order)
	return &order, nil
}

func (g *fakeGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return signature == validCheckoutSig
}

func (g *fakeGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return signature == validWebhookSig
}

// fakeProvisioner is an in-memory learning platform
type fakeProvisioner struct {
	mu          sync.Mutex
	accounts    map[string]string
	idSeq       int
	failLookup  bool
	failCreate  bool
	failGrant   bool
	createCalls int
	grantCalls  []grantCall
}

type grantCall struct {
	accountID  string
	tier       string
	amountPaid int64
	credits    int
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{accounts: make(map[string]string)}
}

func (p *fakeProvisioner) FindByEmail(ctx context.Context, email string) (*provisioning.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLookup {
		return nil, errors.New("platform unavailable")
	}
	if id, ok := p.accounts[email]; ok {
		return &provisioning.Account{Registered: true, ID: id}, nil
	}
	return &provisioning.Account{Registered: false}, nil
}

func (p *fakeProvisioner) Create(ctx context.Context, username, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCreate {
		return "", errors.New("platform unavailable")
	}
	if _, ok := p.accounts[email]; ok {
		return "", provisioning.ErrAlreadyRegistered
	}
	p.createCalls++
	p.idSeq++
	id := fmt.Sprintf("acct_%d", p.idSeq)
	p.accounts[email] = id
	return id, nil
}

func (p *fakeProvisioner) GrantCredits(ctx context.Context, accountID, tier string, amountPaid int64, credits int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGrant {
		return errors.New("platform unavailable")
	}
	p.grantCalls = append(p.grantCalls, grantCall{accountID, tier, amountPaid, credits})
	return nil
}

// fakeLocker implements SetNX lock semantics in memory
type fakeLocker struct {
	mu        sync.Mutex
	locks     map[string]bool
	processed map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{
		locks:     make(map[string]bool),
		processed: make(map[string]bool),
	}
}

func (l *fakeLocker) AcquireFulfillmentLock(ctx context.Context, registrationID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[registrationID] {
		return false, nil
	}
	l.locks[registrationID] = true
	return true, nil
}

func (l *fakeLocker) ReleaseFulfillmentLock(ctx context.Context, registrationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, registrationID)
	return nil
}

func (l *fakeLocker) MarkPaymentProcessed(ctx context.Context, paymentID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed[paymentID] = true
	return nil
}

func (l *fakeLocker) IsPaymentProcessed(ctx context.Context, paymentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed[paymentID], nil
}

// fakeNotifier records enqueued jobs without dispatching anything
type fakeNotifier struct {
	mu   sync.Mutex
	jobs []worker.NotificationJob
}

func (n *fakeNotifier) Enqueue(job worker.NotificationJob) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return true
}

func (n *fakeNotifier) jobCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.jobs)
}

// fakeEvents records published domain events
type fakeEvents struct {
	mu        sync.Mutex
	completed []*models.RegistrationCompletedEvent
	rejected  []*models.RegistrationRejectedEvent
	bulk      []*models.BulkImportFinishedEvent
}

func (e *fakeEvents) PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, event)
	return nil
}

func (e *fakeEvents) PublishRegistrationRejected(ctx context.Context, event *models.RegistrationRejectedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected = append(e.rejected, event)
	return nil
}

func (e *fakeEvents) PublishBulkImportFinished(ctx context.Context, event *models.BulkImportFinishedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulk = append(e.bulk, event)
	return nil
}
