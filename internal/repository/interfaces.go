package repository

import (
	"context"
	"time"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
)

// AppRepository exposes persistence for registered applications and
// their redirect-URI allowlists.
type AppRepository interface {
	Create(ctx context.Context, app domain.Application) error
	// Get loads an application with its redirect URIs. A non-zero
	// ownerID additionally scopes the lookup to that owner.
	Get(ctx context.Context, clientID int32, ownerID int64) (domain.Application, error)
	ListPartial(ctx context.Context, ownerID int64) ([]domain.PartialApplication, error)
	UpdateSecret(ctx context.Context, clientID int32, secret string) error
	UpdateName(ctx context.Context, clientID int32, name *string, flags int) error
	ReplaceRedirectURIs(ctx context.Context, clientID int32, uris []string) error
	// Delete removes the application and cascades to its redirect URIs,
	// pending authorizations, refresh tokens, and access tokens.
	Delete(ctx context.Context, clientID int32) error
}

// AuthingRepository manages pending authorizations. Expiry enforcement
// is lazy: Get sweeps expired rows before looking up.
type AuthingRepository interface {
	Create(ctx context.Context, authing domain.Authing) error
	Get(ctx context.Context, code string) (domain.Authing, error)
	// Consume deletes the authing and reports whether a row was
	// actually removed, so concurrent exchanges of one code have at
	// most one winner.
	Consume(ctx context.Context, code string) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) error
}

// TokenRepository handles refresh and access token persistence.
type TokenRepository interface {
	// SaveRefreshToken rotates the (client, user) pair: any prior
	// refresh token and the access tokens descended from it are
	// deleted before the new token is inserted.
	SaveRefreshToken(ctx context.Context, token domain.RefreshToken) error
	// GetRefreshToken does not sweep expired rows; expiry is checked at
	// use-time so callers can distinguish gone from not-found.
	GetRefreshToken(ctx context.Context, token string) (domain.RefreshToken, error)
	ListRefreshTokensByUser(ctx context.Context, userID int64) ([]domain.RefreshToken, error)
	// DeleteRefreshToken removes a user's refresh token and its access
	// tokens, reporting whether it existed.
	DeleteRefreshToken(ctx context.Context, token string, userID int64) (bool, error)
	// SaveAccessToken replaces any prior access token for the same
	// (client, refresh token) pair.
	SaveAccessToken(ctx context.Context, token domain.AccessToken) error
	// GetAccessToken purges all expired access tokens first, so an
	// expired token always reads as absent.
	GetAccessToken(ctx context.Context, token string) (domain.AccessToken, error)
}

// ScratcherRepository persists the verified Scratch account mapping.
type ScratcherRepository interface {
	Upsert(ctx context.Context, scratcher domain.Scratcher) error
	GetByID(ctx context.Context, userID int64) (domain.Scratcher, error)
	// GetByName looks up by the lower-cased canonical key.
	GetByName(ctx context.Context, username string) (domain.Scratcher, error)
}

// SessionStore persists short-lived browser sessions.
type SessionStore interface {
	// Get returns nil when the session does not exist.
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
