// Package session holds local session state, most importantly the
// bearer credential the remote API client attaches to every request.
package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teamgrid/workspace-client/internal/db"
	apperrors "github.com/teamgrid/workspace-client/internal/errors"
)

const tokenKey = "bearer_token"

// Store persists session state in the local sync database. How the
// credential is obtained or refreshed is outside the engine; callers
// write it here and the API client reads it per request.
type Store struct {
	db db.DBTX
}

// New returns a session Store bound to the given DBTX.
func New(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// SetToken stores the bearer credential.
func (s *Store) SetToken(ctx context.Context, token string) error {
	query := `INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, tokenKey, token, time.Now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to store credential", err)
	}
	return nil
}

// Token returns the stored bearer credential. If the credential is a
// JWT, its expiry claim is inspected (without signature verification,
// which is the server's job) so the processor can surface an expired
// session instead of burning retry budget on 401s.
func (s *Store) Token(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.New(apperrors.ErrNoCredential, "no bearer credential in session state")
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to read credential", err)
	}

	if expired, ok := jwtExpired(token); ok && expired {
		return "", apperrors.New(apperrors.ErrCredentialExpired, "bearer credential has expired")
	}
	return token, nil
}

// jwtExpired reports (expired, isJWT). Opaque tokens pass through
// untouched.
func jwtExpired(token string) (bool, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, true
	}
	return exp.Before(time.Now()), true
}
