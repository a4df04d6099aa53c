package customer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	sessionrepo "storefront/internal/repository/session"
)

// sessionStore issues opaque login tokens. Only their digests are persisted.
type sessionStore struct {
	repo   sessionrepo.Repository
	now    func() time.Time
	logger logrus.FieldLogger
}

func (m *sessionStore) issue(ctx context.Context, customerID string, ttl time.Duration) (string, error) {
	expiresAt := m.now().Add(ttl)
	for i := 0; i < 5; i++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		err = m.repo.Create(ctx, sessionrepo.Session{
			Digest:     sessionrepo.Digest(token),
			CustomerID: customerID,
			ExpiresAt:  expiresAt,
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
	}
	return "", errors.New("session token collision")
}

// resolve returns the customer id behind token. Expired sessions are
// deleted on sight.
func (m *sessionStore) resolve(ctx context.Context, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	digest := sessionrepo.Digest(token)
	s, err := m.repo.Get(ctx, digest)
	if err != nil || s.CustomerID == "" {
		return "", false
	}
	now := m.now()
	if s.Expired(now) {
		if err := m.repo.Delete(ctx, digest); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.logger.WithError(err).Warn("delete expired session")
		}
		return "", false
	}
	if err := m.repo.Touch(ctx, digest, now); err != nil {
		m.logger.WithError(err).Debug("touch session")
	}
	return s.CustomerID, true
}

func (m *sessionStore) revoke(ctx context.Context, token string) error {
	return m.repo.Delete(ctx, sessionrepo.Digest(token))
}

func (m *sessionStore) purge(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
