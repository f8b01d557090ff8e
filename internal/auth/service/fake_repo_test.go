package service_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/securesteps/auth-service/internal/auth/domain"
	autherror "github.com/securesteps/auth-service/internal/errors"
	"github.com/securesteps/auth-service/internal/events"
)

// memRepo is an in-memory credential store. Transactions are serialised and
// roll back by restoring a snapshot.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users    map[string]domain.User
	otps     []domain.OTP
	sessions map[string]domain.Session
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.Session),
	}
}

type memSnapshot struct {
	users    map[string]domain.User
	otps     []domain.OTP
	sessions map[string]domain.Session
}

func (r *memRepo) snapshot() memSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := memSnapshot{
		users:    make(map[string]domain.User, len(r.users)),
		otps:     append([]domain.OTP(nil), r.otps...),
		sessions: make(map[string]domain.Session, len(r.sessions)),
	}
	for k, v := range r.users {
		s.users[k] = v
	}
	for k, v := range r.sessions {
		s.sessions[k] = v
	}
	return s
}

func (r *memRepo) restore(s memSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users, r.otps, r.sessions = s.users, s.otps, s.sessions
}

func (r *memRepo) WithTx(ctx context.Context, fn func(repo domain.UserRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	snap := r.snapshot()
	if err := fn(r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) || strings.EqualFold(u.Username, user.Username) {
			return autherror.ErrUserExists
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memRepo) update(id string, fn func(u *domain.User)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		fn(&u)
		r.users[id] = u
	}
}

func (r *memRepo) UpdatePassword(_ context.Context, userID, hash string) error {
	r.update(userID, func(u *domain.User) { u.PasswordHash = hash })
	return nil
}

func (r *memRepo) MarkEmailVerified(_ context.Context, userID string) error {
	r.update(userID, func(u *domain.User) { u.IsEmailVerified = true })
	return nil
}

func (r *memRepo) IncrementOTPRetry(_ context.Context, userID string, maxAttempts int, blockUntil time.Time) (*time.Time, error) {
	var blocked *time.Time
	r.update(userID, func(u *domain.User) {
		if u.OTPRetryCount+1 >= maxAttempts {
			u.OTPRetryCount = 0
			b := blockUntil
			u.OTPBlockedUntil = &b
		} else {
			u.OTPRetryCount++
		}
		blocked = u.OTPBlockedUntil
	})
	return blocked, nil
}

func (r *memRepo) ResetOTPCounters(_ context.Context, userID string) error {
	r.update(userID, func(u *domain.User) {
		u.OTPRetryCount = 0
		u.OTPBlockedUntil = nil
	})
	return nil
}

func (r *memRepo) CreateOTP(_ context.Context, otp *domain.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otps = append(r.otps, *otp)
	return nil
}

func (r *memRepo) GetLatestOTP(_ context.Context, userID string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.OTP
	for i := range r.otps {
		o := r.otps[i]
		if o.UserID != userID || o.Purpose != purpose {
			continue
		}
		// Equal timestamps resolve to the later insert.
		if latest == nil || !o.CreatedAt.Before(latest.CreatedAt) {
			latest = &o
		}
	}
	return latest, nil
}

func (r *memRepo) MarkOTPVerified(_ context.Context, otpID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.otps {
		if r.otps[i].ID == otpID && !r.otps[i].IsVerified {
			r.otps[i].IsVerified = true
			r.otps[i].VerifiedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *memRepo) DeleteActiveSession(_ context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.ExpiresAt.After(now) {
		return nil, nil
	}
	delete(r.sessions, sessionID)
	return &s, nil
}

func (r *memRepo) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return ok, nil
}

func (r *memRepo) ListSessionsByUserID(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteSessionsByUserID(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// captureNotifier remembers the last code sent per address.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	ttls  map[string]time.Duration
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (n *captureNotifier) SendOTP(_ context.Context, to, code string, _ domain.OTPPurpose, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.codes[to] = code
	n.ttls[to] = ttl
	return nil
}

func (n *captureNotifier) last(to string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[to]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type noLimit struct{}

func (noLimit) Check(context.Context, string, string) error         { return nil }
func (noLimit) RecordFailure(context.Context, string, string) error { return nil }
func (noLimit) Reset(context.Context, string, string) error         { return nil }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
