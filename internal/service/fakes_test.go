package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utafrali/WeddingDonations/internal/auth"
	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/repository"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	pkgkafka "github.com/utafrali/WeddingDonations/pkg/kafka"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- In-memory ledger ---

// memLedger holds donations and envelopes together so a status transition
// and its envelope effect happen under one lock, like the SQL transaction.
type memLedger struct {
	mu            sync.Mutex
	donations     map[string]*domain.Donation
	envelopes     map[string]*domain.Envelope
	transitions   int
	createErr     error
	transitionErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		donations: make(map[string]*domain.Donation),
		envelopes: make(map[string]*domain.Envelope),
	}
}

func (l *memLedger) addEnvelope(e domain.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.envelopes[e.ID] = &e
}

func (l *memLedger) usage(envelopeID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.envelopes[envelopeID].UsageCount
}

func (l *memLedger) status(reference string) domain.DonationStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.donations[reference]; ok {
		return d.Status
	}
	return ""
}

func (l *memLedger) put(d domain.Donation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.donations[d.Reference] = &d
}

func (l *memLedger) Create(_ context.Context, d *domain.Donation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	if _, ok := l.donations[d.Reference]; ok {
		return apperrors.AlreadyExists("donation", "reference", d.Reference)
	}
	cp := *d
	l.donations[d.Reference] = &cp
	return nil
}

func (l *memLedger) GetByReference(_ context.Context, reference string) (*domain.Donation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.donations[reference]
	if !ok {
		return nil, apperrors.NotFound("donation", reference)
	}
	cp := *d
	return &cp, nil
}

func (l *memLedger) TransitionStatus(_ context.Context, c repository.StatusChange) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transitionErr != nil {
		return false, l.transitionErr
	}
	d, ok := l.donations[c.Reference]
	if !ok || d.Status != c.Transition.From {
		return false, nil
	}
	d.Status = c.Transition.To
	d.UpdatedAt = c.At
	if c.TransactionID != "" {
		d.TransactionID = c.TransactionID
	}
	if c.Transition.To == domain.DonationCompleted {
		at := c.At
		d.CompletedAt = &at
	}
	l.transitions++

	if d.EnvelopeID == nil {
		return true, nil
	}
	env, ok := l.envelopes[*d.EnvelopeID]
	if !ok {
		return true, nil
	}
	switch c.Transition.Effect {
	case domain.EnvelopeIncrement:
		env.UsageCount++
	case domain.EnvelopeDecrement:
		env.UsageCount = max(env.UsageCount-1, 0)
	}
	return true, nil
}

func (l *memLedger) ListRecent(_ context.Context, offset, limit int) ([]domain.Donation, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := make([]domain.Donation, 0, len(l.donations))
	for _, d := range l.donations {
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

// memEnvelopes adapts memLedger to EnvelopeRepository.
type memEnvelopes struct{ l *memLedger }

func (e memEnvelopes) GetByID(_ context.Context, id string) (*domain.Envelope, error) {
	e.l.mu.Lock()
	defer e.l.mu.Unlock()
	env, ok := e.l.envelopes[id]
	if !ok {
		return nil, apperrors.NotFound("envelope", id)
	}
	cp := *env
	return &cp, nil
}

func (e memEnvelopes) IncrementUsage(_ context.Context, id string) error {
	e.l.mu.Lock()
	defer e.l.mu.Unlock()
	env, ok := e.l.envelopes[id]
	if !ok {
		return apperrors.NotFound("envelope", id)
	}
	env.UsageCount++
	return nil
}

func (e memEnvelopes) DecrementUsage(_ context.Context, id string) error {
	e.l.mu.Lock()
	defer e.l.mu.Unlock()
	env, ok := e.l.envelopes[id]
	if !ok {
		return apperrors.NotFound("envelope", id)
	}
	env.UsageCount = max(env.UsageCount-1, 0)
	return nil
}

// --- In-memory admins and refresh tokens ---

type memAdmins struct {
	mu     sync.Mutex
	admins map[string]*domain.Admin
}

func newMemAdmins() *memAdmins {
	return &memAdmins{admins: make(map[string]*domain.Admin)}
}

func (m *memAdmins) Create(_ context.Context, a *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.admins {
		if existing.Email == a.Email {
			return apperrors.AlreadyExists("admin", "email", a.Email)
		}
	}
	cp := *a
	m.admins[a.ID] = &cp
	return nil
}

func (m *memAdmins) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, apperrors.NotFound("admin", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memAdmins) GetByEmail(_ context.Context, email string) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("admin", email)
}

func (m *memAdmins) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return apperrors.NotFound("admin", id)
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAdmins) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return apperrors.NotFound("admin", id)
	}
	a.LastLogin = &at
	return nil
}

func (m *memAdmins) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[id].IsActive = active
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *memTokens) Create(_ context.Context, t *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokens) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memTokens) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		t.LastUsed = at
	}
	return nil
}

// byHashLocked returns the stored record for token. Callers hold m.mu.
func (m *memTokens) byHashLocked(token string) *domain.RefreshToken {
	for _, rt := range m.tokens {
		if rt.TokenHash == auth.HashToken(token) {
			return rt
		}
	}
	return nil
}

func (m *memTokens) byHash(t *testing.T, token string) domain.RefreshToken {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := m.byHashLocked(token)
	require.NotNil(t, rt, "no stored refresh token")
	return *rt
}

func (m *memTokens) Revoke(_ context.Context, id, adminID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.AdminID != adminID || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	return true, nil
}

func (m *memTokens) RevokeAllForAdmin(_ context.Context, adminID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.AdminID == adminID && !t.IsRevoked {
			t.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (m *memTokens) ListActiveForAdmin(_ context.Context, adminID string, now time.Time) ([]domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range m.tokens {
		if t.AdminID == adminID && t.IsUsable(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}

func (m *memTokens) DeleteExpiredOrRevoked(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.IsRevoked || !now.Before(t.ExpiresAt) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// --- Events ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}
