package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/domain"
)

// MemoryPaymentRepository keeps payments in process memory. The status
// compare-and-set runs under the write lock.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]domain.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[uuid.UUID]domain.Payment)}
}

func (r *MemoryPaymentRepository) Insert(_ context.Context, payment *domain.Payment) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.ID]; exists {
		return nil, fmt.Errorf("Insert: %w", domain.ErrConflict)
	}
	r.payments[payment.ID] = *payment
	p := *payment
	return &p, nil
}

func (r *MemoryPaymentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (r *MemoryPaymentRepository) List(_ context.Context) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return payments, nil
}

func (r *MemoryPaymentRepository) UpdateStatus(_ context.Context, id uuid.UUID, expected, next domain.PaymentStatus) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	if p.Status != expected {
		return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrConflict)
	}
	p.Status = next
	r.payments[id] = p
	return &p, nil
}

func (r *MemoryPaymentRepository) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, p := range r.payments {
		if slices.Contains(domain.ActivePaymentStatuses(), p.Status) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryPaymentRepository) Ping(context.Context) error { return nil }

// MemoryNotificationRepository is an append-only list guarded by a mutex.
type MemoryNotificationRepository struct {
	mu            sync.RWMutex
	notifications []domain.Notification
	index         map[uuid.UUID]int
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{index: make(map[uuid.UUID]int)}
}

func (r *MemoryNotificationRepository) Append(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[n.ID]; exists {
		return nil, fmt.Errorf("Append: %w", domain.ErrConflict)
	}
	r.index[n.ID] = len(r.notifications)
	r.notifications = append(r.notifications, *n)
	out := *n
	return &out, nil
}

func (r *MemoryNotificationRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	n := r.notifications[i]
	return &n, nil
}

func (r *MemoryNotificationRepository) List(_ context.Context) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.notifications), nil
}

func (r *MemoryNotificationRepository) Ping(context.Context) error { return nil }

type MemoryIdempotencyRepository struct {
	mu      sync.Mutex
	entries map[string]IdempotencyCacheEntry
	now     func() time.Time
}

func NewMemoryIdempotencyRepository() *MemoryIdempotencyRepository {
	return &MemoryIdempotencyRepository{
		entries: make(map[string]IdempotencyCacheEntry),
		now:     time.Now,
	}
}

func (r *MemoryIdempotencyRepository) Get(_ context.Context, key string) (*IdempotencyCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.ExpiresAt.After(r.now()) {
		delete(r.entries, key)
		return nil, nil
	}
	return &e, nil
}

func (r *MemoryIdempotencyRepository) Set(_ context.Context, entry *IdempotencyCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.Key]; !exists {
		r.entries[entry.Key] = *entry
	}
	return nil
}

func (r *MemoryIdempotencyRepository) CleanExpired(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := r.now()
	for key, e := range r.entries {
		if !e.ExpiresAt.After(now) {
			delete(r.entries, key)
			n++
		}
	}
	return n, nil
}
