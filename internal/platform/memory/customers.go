package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
	custrepo "storefront/internal/repository/customer"
	sessionrepo "storefront/internal/repository/session"
)

type Customers struct {
	mu      sync.RWMutex
	byEmail map[string]domain.Customer
}

var _ custrepo.Repository = (*Customers)(nil)

func NewCustomers() *Customers {
	return &Customers{byEmail: make(map[string]domain.Customer)}
}

func (r *Customers) Create(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(c.Email)
	if _, exists := r.byEmail[key]; exists {
		return nil, domain.ErrAlreadyExists
	}
	c.Email = key
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.byEmail[key] = c
	return &c, nil
}

func (r *Customers) GetByEmail(_ context.Context, email string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *Customers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byEmail {
		if c.ID == id {
			clone := c
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

type Sessions struct {
	mu       sync.Mutex
	sessions map[string]sessionrepo.Session
}

var _ sessionrepo.Repository = (*Sessions)(nil)

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]sessionrepo.Session)}
}

func (r *Sessions) Create(_ context.Context, s sessionrepo.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.Digest]; exists {
		return domain.ErrAlreadyExists
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.LastSeenAt = s.CreatedAt
	r.sessions[s.Digest] = s
	return nil
}

func (r *Sessions) Get(_ context.Context, digest string) (*sessionrepo.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[digest]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *Sessions) Touch(_ context.Context, digest string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[digest]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastSeenAt = at
	r.sessions[digest] = s
	return nil
}

func (r *Sessions) Delete(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[digest]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, digest)
	return nil
}

func (r *Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, k)
			n++
		}
	}
	return n, nil
}
