package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
)

var ErrRegistrationOTPNotFound = errors.New("registration code not found")

// RegistrationOTPStore holds pre-account email ownership challenges. Entries
// disappear on their own once the TTL passes.
type RegistrationOTPStore interface {
	Put(ctx context.Context, email string, entry domain.RegistrationOTP, ttl time.Duration) error
	Get(ctx context.Context, email string) (domain.RegistrationOTP, error)
	// IncrementAttempts bumps the counter only if it still equals expected.
	IncrementAttempts(ctx context.Context, email string, expected int) (bool, error)
	// MarkVerified flags the entry as proven only if it still carries
	// fingerprint and was not verified before.
	MarkVerified(ctx context.Context, email, fingerprint string) (bool, error)
	// Consume removes the entry only if it still carries fingerprint.
	Consume(ctx context.Context, email, fingerprint string) (bool, error)
	Delete(ctx context.Context, email string) error
}

type registrationOTPRecord struct {
	entry    domain.RegistrationOTP
	evictsAt time.Time
}

type InMemoryRegistrationOTPStore struct {
	mu   sync.Mutex
	data map[string]registrationOTPRecord
	now  func() time.Time
}

func NewInMemoryRegistrationOTPStore() *InMemoryRegistrationOTPStore {
	return &InMemoryRegistrationOTPStore{
		data: make(map[string]registrationOTPRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryRegistrationOTPStore) Put(ctx context.Context, email string, entry domain.RegistrationOTP, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[email] = registrationOTPRecord{entry: entry, evictsAt: s.now().Add(ttl)}
	observability.RecordRegistrationStoreEvent(ctx, "memory", "put", "success")
	return nil
}

func (s *InMemoryRegistrationOTPStore) Get(ctx context.Context, email string) (domain.RegistrationOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(email)
	if !ok {
		observability.RecordRegistrationStoreEvent(ctx, "memory", "get", "miss")
		return domain.RegistrationOTP{}, ErrRegistrationOTPNotFound
	}
	observability.RecordRegistrationStoreEvent(ctx, "memory", "get", "hit")
	return rec.entry, nil
}

func (s *InMemoryRegistrationOTPStore) IncrementAttempts(ctx context.Context, email string, expected int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(email)
	if !ok {
		return false, ErrRegistrationOTPNotFound
	}
	if rec.entry.Attempts != expected {
		observability.RecordRegistrationStoreEvent(ctx, "memory", "increment", "conflict")
		return false, nil
	}
	rec.entry.Attempts++
	s.data[email] = rec
	observability.RecordRegistrationStoreEvent(ctx, "memory", "increment", "success")
	return true, nil
}

func (s *InMemoryRegistrationOTPStore) MarkVerified(ctx context.Context, email, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(email)
	if !ok || rec.entry.Fingerprint != fingerprint || rec.entry.Verified {
		observability.RecordRegistrationStoreEvent(ctx, "memory", "verify", "conflict")
		return false, nil
	}
	rec.entry.Verified = true
	s.data[email] = rec
	observability.RecordRegistrationStoreEvent(ctx, "memory", "verify", "success")
	return true, nil
}

func (s *InMemoryRegistrationOTPStore) Consume(ctx context.Context, email, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(email)
	if !ok || rec.entry.Fingerprint != fingerprint {
		observability.RecordRegistrationStoreEvent(ctx, "memory", "consume", "conflict")
		return false, nil
	}
	delete(s.data, email)
	observability.RecordRegistrationStoreEvent(ctx, "memory", "consume", "success")
	return true, nil
}

func (s *InMemoryRegistrationOTPStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, email)
	observability.RecordRegistrationStoreEvent(ctx, "memory", "delete", "success")
	return nil
}

// liveLocked returns the entry for email, evicting it first if its TTL has
// passed.
func (s *InMemoryRegistrationOTPStore) liveLocked(email string) (registrationOTPRecord, bool) {
	rec, ok := s.data[email]
	if !ok {
		return registrationOTPRecord{}, false
	}
	if !s.now().Before(rec.evictsAt) {
		delete(s.data, email)
		return registrationOTPRecord{}, false
	}
	return rec, true
}
