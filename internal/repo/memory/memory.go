// Package memory provides mutex-guarded stores for tests and STORAGE=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/repo"
)

type Store struct {
	mu sync.Mutex

	now func() time.Time

	nextAccountID      int64
	nextCodeID         int64
	nextNotificationID int64

	accounts      map[int64]*domain.Account
	byEmail       map[string]int64
	codes         map[codeKey]*domain.OneTimeCode
	notifications map[int64]*domain.Notification
}

type codeKey struct {
	accountID int64
	purpose   domain.Purpose
}

func New() *Store {
	return &Store{
		now:           time.Now,
		accounts:      make(map[int64]*domain.Account),
		byEmail:       make(map[string]int64),
		codes:         make(map[codeKey]*domain.OneTimeCode),
		notifications: make(map[int64]*domain.Notification),
	}
}

// SetClock overrides the time source used for timestamps and expiry filtering.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Stores() repo.Stores {
	return repo.Stores{
		Accounts:      s.Accounts(),
		Codes:         s.Codes(),
		Notifications: s.Notifications(),
	}
}

func (s *Store) Accounts() repo.AccountStore { return accountStore{s} }
func (s *Store) Codes() repo.CodeStore { return codeStore{s} }
func (s *Store) Notifications() repo.NotificationStore { return notificationStore{s} }

// CodeCount reports how many codes are stored for the pair, expired or not.
func (s *Store) CodeCount(accountID int64, purpose domain.Purpose) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[codeKey{accountID, purpose}]; ok {
		return 1
	}
	return 0
}

type accountStore struct{ s *Store }

func (a accountStore) Create(_ context.Context, in *domain.Account) (*domain.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeEmail(in.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, domain.ErrEmailTaken
	}
	s.nextAccountID++
	now := s.now()
	acc := *in
	acc.ID = s.nextAccountID
	acc.Email = email
	if acc.Role == "" {
		acc.Role = domain.RoleUser
	}
	acc.CreatedAt = now
	acc.UpdatedAt = now
	s.accounts[acc.ID] = &acc
	s.byEmail[email] = acc.ID

	out := acc
	return &out, nil
}

func (a accountStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	out := *s.accounts[id]
	return &out, nil
}

func (a accountStore) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	out := *acc
	return &out, nil
}

func (a accountStore) MarkVerified(_ context.Context, id int64) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.EmailVerified = true
	acc.UpdatedAt = s.now()
	return nil
}

type codeStore struct{ s *Store }

func (c codeStore) Replace(_ context.Context, accountID int64, purpose domain.Purpose, codeHash string, expiresAt time.Time) (*domain.OneTimeCode, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCodeID++
	code := &domain.OneTimeCode{
		ID:        s.nextCodeID,
		AccountID: accountID,
		CodeHash:  codeHash,
		Purpose:   purpose,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}
	s.codes[codeKey{accountID, purpose}] = code

	out := *code
	return &out, nil
}

func (c codeStore) FindActive(_ context.Context, accountID int64, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeKey{accountID, purpose}]
	if !ok || code.IsExpired(s.now()) {
		return nil, nil
	}
	out := *code
	return &out, nil
}

func (c codeStore) Consume(_ context.Context, id int64, codeHash string) (bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, code := range s.codes {
		if code.ID == id && code.CodeHash == codeHash {
			delete(s.codes, k)
			return true, nil
		}
	}
	return false, nil
}

func (c codeStore) DeleteFor(_ context.Context, accountID int64, purpose domain.Purpose) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, codeKey{accountID, purpose})
	return nil
}

func (c codeStore) DeleteExpired(_ context.Context) (int64, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, code := range s.codes {
		if code.IsExpired(now) {
			delete(s.codes, k)
			n++
		}
	}
	return n, nil
}

type notificationStore struct{ s *Store }

func (ns notificationStore) Create(_ context.Context, in *domain.Notification) (*domain.Notification, error) {
	s := ns.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	now := s.now()
	n := cloneNotification(in)
	n.ID = s.nextNotificationID
	n.CreatedAt = now
	n.UpdatedAt = now
	s.notifications[n.ID] = n

	return cloneNotification(n), nil
}

func (ns notificationStore) FindByID(_ context.Context, id int64) (*domain.Notification, error) {
	s := ns.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, nil
	}
	return cloneNotification(n), nil
}

func (ns notificationStore) ListVisible(_ context.Context, v domain.Viewer, limit int) ([]domain.Notification, error) {
	s := ns.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Notification, 0)
	for _, n := range s.notifications {
		if n.VisibleTo(v) {
			out = append(out, *cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Read != out[j].Read {
			return !out[i].Read
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ns notificationStore) MarkRead(_ context.Context, id int64) error {
	s := ns.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	if !n.Read {
		n.Read = true
		n.UpdatedAt = s.now()
	}
	return nil
}

func (ns notificationStore) MarkAllRead(_ context.Context, v domain.Viewer) (int64, error) {
	s := ns.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	now := s.now()
	for _, n := range s.notifications {
		if !n.Read && n.VisibleTo(v) {
			n.Read = true
			n.UpdatedAt = now
			changed++
		}
	}
	return changed, nil
}

// cloneNotification copies n so callers never share UserID or Meta with the
// stored record.
func cloneNotification(n *domain.Notification) *domain.Notification {
	out := *n
	if n.UserID != nil {
		id := *n.UserID
		out.UserID = &id
	}
	if n.Meta != nil {
		out.Meta = cloneValue(n.Meta).(map[string]any)
	}
	return &out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
