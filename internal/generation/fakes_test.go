package generation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"imageforge-backend/internal/azureai"
	"imageforge-backend/internal/identity"
	"imageforge-backend/internal/models"
)

type fakeVerifier struct {
	users map[string]string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*identity.User, error) {
	id, ok := f.users[token]
	if !ok {
		return nil, identity.ErrUnauthorized
	}
	return &identity.User{ID: id, Email: id + "@example.com"}, nil
}

type debit struct {
	userID uuid.UUID
	amount int
}

// memoryLedger mirrors the SQL ledger: a conditional debit under one lock
// and a refund that applies at most once per attempt.
type memoryLedger struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]int
	debits     map[uuid.UUID]debit
	refunded   map[uuid.UUID]bool
	debitCalls atomic.Int32
	refundErrs int
	onDebit    func()
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		balances: map[uuid.UUID]int{},
		debits:   map[uuid.UUID]debit{},
		refunded: map[uuid.UUID]bool{},
	}
}

func (l *memoryLedger) TryDebit(_ context.Context, userID, attemptID uuid.UUID, amount int) (bool, error) {
	l.debitCalls.Add(1)
	if l.onDebit != nil {
		defer l.onDebit()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return false, nil
	}
	l.balances[userID] -= amount
	l.debits[attemptID] = debit{userID: userID, amount: amount}
	return true, nil
}

func (l *memoryLedger) Refund(_ context.Context, attemptID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refundErrs > 0 {
		l.refundErrs--
		return false, errors.New("connection reset")
	}
	d, ok := l.debits[attemptID]
	if !ok || l.refunded[attemptID] {
		return false, nil
	}
	l.refunded[attemptID] = true
	l.balances[d.userID] += d.amount
	return true, nil
}

func (l *memoryLedger) balance(userID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memoryLedger) refunds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refunded)
}

type fakeJobs struct {
	configured bool
	submitErr  error
	imageURL   string
	waitErr    error
	submits    atomic.Int32
	waitCtxErr atomic.Value
}

func (f *fakeJobs) Configured() bool { return f.configured }

func (f *fakeJobs) Submit(_ context.Context, _ string) (azureai.JobHandle, error) {
	f.submits.Add(1)
	if f.submitErr != nil {
		return azureai.JobHandle{}, f.submitErr
	}
	return azureai.JobHandle{OperationLocation: "https://provider.example/op"}, nil
}

func (f *fakeJobs) WaitForResult(ctx context.Context, _ azureai.JobHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		f.waitCtxErr.Store(err)
	}
	if f.waitErr != nil {
		return "", f.waitErr
	}
	return f.imageURL, nil
}

type memoryStore struct {
	mu     sync.Mutex
	images []models.GeneratedImage
	err    error
}

func (s *memoryStore) CreateImage(_ context.Context, userID uuid.UUID, prompt, imageURL string) (*models.GeneratedImage, error) {
	if s.err != nil {
		return nil, s.err
	}
	image := models.GeneratedImage{
		ID:        uuid.New(),
		UserID:    userID,
		Prompt:    prompt,
		ImageURL:  imageURL,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.images = append(s.images, image)
	s.mu.Unlock()
	return &image, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

type fakeMirror struct {
	err       error
	removeErr error

	mu      sync.Mutex
	removed []string
}

func (m *fakeMirror) MirrorImage(_ context.Context, userID, attemptID uuid.UUID, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://storage.example/users/" + userID.String() + "/images/" + attemptID.String() + ".png", nil
}

func (m *fakeMirror) RemoveImage(_ context.Context, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, imageURL)
	return m.removeErr
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed int
	keys    []string
}

func (l *fakeLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.allowed == 0 {
		return false
	}
	l.allowed--
	return true
}

type fakePublisher struct {
	mu     sync.Mutex
	images []*models.GeneratedImage
	err    error
}

func (p *fakePublisher) PublishImageCreated(_ context.Context, image *models.GeneratedImage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, image)
	return p.err
}
