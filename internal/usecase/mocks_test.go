//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"device-pairing-service/internal/domain"
	"device-pairing-service/internal/domain/model"
	"device-pairing-service/internal/domain/ports/repository"
)

// --- In-memory activation repository ---
//
// Mirrors the store contract including the atomic conditional writes: every
// mutation holds the mutex across predicate check and update, so concurrent
// claims race exactly the way they do against the real conditional UPDATE.

type memActivationRepo struct {
	mu          sync.Mutex
	byID        map[string]*model.Activation
	now         func() time.Time
	createErr   error // optional error hooks
	findErr     error
	claimErr    error
	forceCollis bool // every Create reports a code collision
}

func newMemActivationRepo(now func() time.Time) *memActivationRepo {
	return &memActivationRepo{byID: map[string]*model.Activation{}, now: now}
}

func (m *memActivationRepo) Create(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceCollis {
		return domain.ErrAlreadyExists
	}
	// Mirror both partial unique indexes of the real store, on the stored
	// status rather than the effective one: a stale pending row still blocks
	// until something flips it.
	for _, ex := range m.byID {
		if ex.Code == a.Code && ex.Status != model.ActivationStatusExpired {
			return domain.ErrAlreadyExists
		}
		if ex.DeviceIdentifier == a.DeviceIdentifier && ex.Status == model.ActivationStatusPending {
			return domain.ErrAlreadyExists
		}
	}
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memActivationRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Activation, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Activation
	for _, a := range m.byID {
		if a.Code != code {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memActivationRepo) FindPendingByDevice(ctx context.Context, tx repository.Tx, deviceIdentifier string) (*model.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.DeviceIdentifier == deviceIdentifier &&
			a.Status == model.ActivationStatusPending &&
			a.ExpiresAt.After(m.now()) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memActivationRepo) RefreshPending(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.Status != model.ActivationStatusPending || !a.ExpiresAt.After(m.now()) {
		return false, nil
	}
	a.ExpiresAt = expiresAt
	a.UpdatedAt = m.now()
	return true, nil
}

func (m *memActivationRepo) ClaimIfPending(ctx context.Context, tx repository.Tx, code, userID string) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Code == code && a.Status == model.ActivationStatusPending && a.ExpiresAt.After(m.now()) {
			uid := userID
			a.Status = model.ActivationStatusClaimed
			a.UserID = &uid
			a.UpdatedAt = m.now()
			return true, nil
		}
	}
	return false, nil
}

func (m *memActivationRepo) ConsumeIfClaimed(ctx context.Context, tx repository.Tx, code, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Code == code && a.Status == model.ActivationStatusClaimed && a.UserID != nil && *a.UserID == userID {
			a.Status = model.ActivationStatusConsumed
			a.UpdatedAt = m.now()
			return true, nil
		}
	}
	return false, nil
}

func (m *memActivationRepo) ExpireDevicePending(ctx context.Context, tx repository.Tx, deviceIdentifier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.DeviceIdentifier == deviceIdentifier &&
			a.Status == model.ActivationStatusPending &&
			!a.ExpiresAt.After(m.now()) {
			a.Status = model.ActivationStatusExpired
			a.UpdatedAt = m.now()
			return true, nil
		}
	}
	return false, nil
}

func (m *memActivationRepo) ExpireStale(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.byID {
		if a.Status == model.ActivationStatusPending && !a.ExpiresAt.After(m.now()) {
			a.Status = model.ActivationStatusExpired
			a.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *memActivationRepo) PurgeExpiredBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.byID {
		if a.Status != model.ActivationStatusPending && a.ExpiresAt.Before(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

// get returns the stored record for assertions.
func (m *memActivationRepo) get(code string) *model.Activation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Code == code {
			cp := *a
			return &cp
		}
	}
	return nil
}

// --- Transaction manager mock ---
//
// Runs the callback with the non-transactional path; the mutex-atomic repo
// already gives each mutation the atomicity a real transaction would.

type memTxManager struct {
	mu    sync.Mutex
	calls int
}

func (m *memTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

func (m *memTxManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Status cache mock ---

type memStatusCache struct {
	mu          sync.Mutex
	entries     map[string][2]string
	invalidated []string
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: map[string][2]string{}}
}

func (c *memStatusCache) Get(ctx context.Context, code string) (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[code]
	return e[0], e[1], ok
}

func (c *memStatusCache) Set(ctx context.Context, code, status, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = [2]string{status, userID}
	return nil
}

func (c *memStatusCache) Invalidate(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	c.invalidated = append(c.invalidated, code)
	return nil
}

func (c *memStatusCache) wasInvalidated(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.invalidated {
		if v == code {
			return true
		}
	}
	return false
}

// --- Rate limiter mock ---

type memLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newMemLimiter() *memLimiter {
	return &memLimiter{counts: map[string]int{}}
}

func (l *memLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

// --- Session token issuer stub ---

type stubTokenIssuer struct{}

func (stubTokenIssuer) Issue(ctx context.Context, userID, deviceIdentifier string) (string, error) {
	return "token-" + userID + "-" + deviceIdentifier, nil
}
