package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

// AuthRequest is a validated authorization request ready for consent.
type AuthRequest struct {
	ClientID    int32
	State       string
	Scopes      []string
	RedirectURI string
}

// ConsentInfo is what the consent page shows about the requesting app.
// The name is withheld until a moderator approves it.
type ConsentInfo struct {
	ClientID int32    `json:"client_id"`
	AppName  *string  `json:"app_name"`
	Scopes   []string `json:"scopes"`
}

// ConsentResult is handed back to the redirect URI after approval.
type ConsentResult struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// TokenPair is the exchange and refresh response. Expiries are unix
// seconds.
type TokenPair struct {
	RefreshToken  string   `json:"refresh_token"`
	RefreshExpiry int64    `json:"refresh_expiry"`
	Scopes        []string `json:"scopes"`
	AccessToken   string   `json:"access_token"`
	AccessExpiry  int64    `json:"access_expiry"`
}

// Identity answers GET /user. Degraded means the Scratch account looks
// deleted; the mapping is still served.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"user_name"`
	Degraded bool   `json:"-"`
}

// Approval is one entry of a user's granted-access list.
type Approval struct {
	Token    string   `json:"token"`
	ClientID int32    `json:"client_id"`
	AppName  *string  `json:"app_name"`
	Scopes   []string `json:"scopes"`
	Expiry   int64    `json:"expiry"`
}

// AuthService drives the authorization-code grant: consent, exchange,
// refresh, and the identity resource.
type AuthService struct {
	apps     repository.AppRepository
	authings repository.AuthingRepository
	tokens   repository.TokenRepository

	scratchers repository.ScratcherRepository
	sessions   repository.SessionStore
	login      *LoginService

	cfg    config.Config
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAuthService wires the state machine together.
func NewAuthService(
	apps repository.AppRepository,
	authings repository.AuthingRepository,
	tokens repository.TokenRepository,
	scratchers repository.ScratcherRepository,
	sessions repository.SessionStore,
	login *LoginService,
	cfg config.Config,
	logger *zap.Logger,
	tracer trace.Tracer,
) *AuthService {
	return &AuthService{
		apps:       apps,
		authings:   authings,
		tokens:     tokens,
		scratchers: scratchers,
		sessions:   sessions,
		login:      login,
		cfg:        cfg,
		logger:     logger,
		tracer:     tracer,
	}
}

// ValidateRequest checks an incoming authorization request and returns
// the app info the consent page displays.
func (s *AuthService) ValidateRequest(ctx context.Context, req AuthRequest) (ConsentInfo, error) {
	ctx, span := s.tracer.Start(ctx, "auth.validate")
	defer span.End()

	if req.State == "" {
		return ConsentInfo{}, newOAuthError(http.StatusBadRequest, "invalid_request", "missing state")
	}
	if len(req.Scopes) == 0 {
		return ConsentInfo{}, newOAuthError(http.StatusBadRequest, "invalid_request", "missing scopes")
	}
	for _, scope := range req.Scopes {
		if !domain.ValidScope(scope) {
			return ConsentInfo{}, newOAuthError(http.StatusBadRequest, "invalid_request", "unknown scope "+scope)
		}
	}

	app, err := s.apps.Get(ctx, req.ClientID, 0)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ConsentInfo{}, newOAuthError(http.StatusBadRequest, "invalid_request", "unknown client_id")
		}
		return ConsentInfo{}, fmt.Errorf("load application: %w", err)
	}

	if req.RedirectURI != "" && !containsString(app.RedirectURIs, req.RedirectURI) {
		return ConsentInfo{}, newOAuthError(http.StatusBadRequest, "invalid_request", "redirect_uri not registered")
	}

	info := ConsentInfo{ClientID: app.ClientID, Scopes: req.Scopes}
	if app.NameApproved() {
		info.AppName = app.AppName
	}
	return info, nil
}

// StartConsent records the user's approval and returns the code to
// deliver through the redirect URI. Repeated posts within one session
// reuse the pending authorization instead of minting codes.
func (s *AuthService) StartConsent(ctx context.Context, sess *domain.Session, req AuthRequest) (ConsentResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.consent")
	defer span.End()

	if _, err := s.ValidateRequest(ctx, req); err != nil {
		return ConsentResult{}, err
	}

	if sess.Authing != "" {
		authing, err := s.authings.Get(ctx, sess.Authing)
		if err == nil && authing.UserID == sess.UserID && authing.ClientID == req.ClientID {
			return ConsentResult{Code: authing.Code, State: authing.State, RedirectURI: authing.RedirectURI}, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return ConsentResult{}, fmt.Errorf("load pending authorization: %w", err)
		}
	}

	code, err := randomHex(32)
	if err != nil {
		return ConsentResult{}, err
	}
	authing := domain.Authing{
		Code:        code,
		ClientID:    req.ClientID,
		UserID:      sess.UserID,
		State:       req.State,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
		Expiry:      time.Now().Add(s.cfg.AuthExpiry),
	}
	if err := s.authings.Create(ctx, authing); err != nil {
		return ConsentResult{}, fmt.Errorf("create authorization: %w", err)
	}

	sess.Authing = code
	if err := s.sessions.Save(ctx, *sess, s.cfg.SessionTTL); err != nil {
		return ConsentResult{}, fmt.Errorf("save session: %w", err)
	}

	s.audit("consent granted",
		zap.Int32("client_id", req.ClientID),
		zap.Int64("user_id", sess.UserID))
	return ConsentResult{Code: code, State: req.State, RedirectURI: req.RedirectURI}, nil
}

// CancelConsent withdraws every pending authorization of the session's
// user.
func (s *AuthService) CancelConsent(ctx context.Context, sess *domain.Session) error {
	ctx, span := s.tracer.Start(ctx, "auth.cancel")
	defer span.End()

	if err := s.authings.DeleteByUser(ctx, sess.UserID); err != nil {
		return fmt.Errorf("delete pending authorizations: %w", err)
	}
	if sess.Authing != "" {
		sess.Authing = ""
		if err := s.sessions.Save(ctx, *sess, s.cfg.SessionTTL); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// ExchangeCode redeems an authorization code for a fresh token pair. A
// code is single-use: concurrent exchanges have at most one winner, the
// rest see NotFound.
func (s *AuthService) ExchangeCode(ctx context.Context, clientID int32, clientSecret, code string, scopes []string) (TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "auth.exchange")
	defer span.End()

	if err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return TokenPair{}, err
	}
	for _, scope := range scopes {
		if !domain.ValidScope(scope) {
			return TokenPair{}, newOAuthError(http.StatusBadRequest, "invalid_request", "unknown scope "+scope)
		}
	}

	authing, err := s.authings.Get(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, newOAuthError(http.StatusNotFound, "not_found", "unknown or expired code")
		}
		return TokenPair{}, fmt.Errorf("load authorization: %w", err)
	}
	if authing.ClientID != clientID {
		return TokenPair{}, newOAuthError(http.StatusNotFound, "not_found", "unknown or expired code")
	}
	if !domain.ScopeSetsEqual(authing.Scopes, scopes) {
		return TokenPair{}, newOAuthError(http.StatusExpectationFailed, "scope_mismatch", "scopes differ from the authorized set")
	}

	ok, err := s.authings.Consume(ctx, code)
	if err != nil {
		return TokenPair{}, fmt.Errorf("consume authorization: %w", err)
	}
	if !ok {
		// Another exchange won the race.
		return TokenPair{}, newOAuthError(http.StatusNotFound, "not_found", "unknown or expired code")
	}

	now := time.Now()
	refreshValue, err := randomHex(64)
	if err != nil {
		return TokenPair{}, err
	}
	refresh := domain.RefreshToken{
		Token:    refreshValue,
		ClientID: clientID,
		UserID:   authing.UserID,
		Scopes:   authing.Scopes,
		Expiry:   now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.tokens.SaveRefreshToken(ctx, refresh); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}

	access, err := s.mintAccessToken(ctx, refresh, now)
	if err != nil {
		return TokenPair{}, err
	}

	s.audit("code exchanged",
		zap.Int32("client_id", clientID),
		zap.Int64("user_id", authing.UserID))
	return TokenPair{
		RefreshToken:  refresh.Token,
		RefreshExpiry: refresh.Expiry.Unix(),
		Scopes:        refresh.Scopes,
		AccessToken:   access.Token,
		AccessExpiry:  access.Expiry.Unix(),
	}, nil
}

// Refresh mints a new access token under an existing refresh token,
// replacing the pair's previous one.
func (s *AuthService) Refresh(ctx context.Context, clientID int32, clientSecret, refreshToken string) (TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "auth.refresh")
	defer span.End()

	if err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.tokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, newOAuthError(http.StatusNotFound, "not_found", "unknown refresh token")
		}
		return TokenPair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if refresh.ClientID != clientID {
		return TokenPair{}, newOAuthError(http.StatusNotFound, "not_found", "unknown refresh token")
	}
	now := time.Now()
	if !now.Before(refresh.Expiry) {
		return TokenPair{}, newOAuthError(http.StatusGone, "gone", "refresh token expired")
	}

	access, err := s.mintAccessToken(ctx, refresh, now)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		RefreshToken:  refresh.Token,
		RefreshExpiry: refresh.Expiry.Unix(),
		Scopes:        refresh.Scopes,
		AccessToken:   access.Token,
		AccessExpiry:  access.Expiry.Unix(),
	}, nil
}

// Identify resolves a bearer access token to the verified Scratch
// identity. A token whose parent refresh token has lapsed is treated as
// unauthenticated even before the purge catches it.
func (s *AuthService) Identify(ctx context.Context, token string) (Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.identify")
	defer span.End()

	access, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Identity{}, newOAuthError(http.StatusUnauthorized, "unauthenticated", "invalid access token")
		}
		return Identity{}, fmt.Errorf("load access token: %w", err)
	}

	refresh, err := s.tokens.GetRefreshToken(ctx, access.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Identity{}, newOAuthError(http.StatusUnauthorized, "unauthenticated", "invalid access token")
		}
		return Identity{}, fmt.Errorf("load refresh token: %w", err)
	}
	if !time.Now().Before(refresh.Expiry) {
		return Identity{}, newOAuthError(http.StatusUnauthorized, "unauthenticated", "invalid access token")
	}
	if !domain.ContainsScope(refresh.Scopes, domain.ScopeIdentify) {
		return Identity{}, newOAuthError(http.StatusForbidden, "insufficient_scope", "identify scope not granted")
	}

	scratcher, err := s.scratchers.GetByID(ctx, access.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Identity{}, newOAuthError(http.StatusNotFound, "not_found", "unknown user")
		}
		return Identity{}, fmt.Errorf("load scratcher: %w", err)
	}

	present := s.login.CheckLiveness(ctx, scratcher.Username)
	return Identity{
		UserID:   scratcher.UserID,
		Username: scratcher.Username,
		Degraded: !present,
	}, nil
}

// ListApprovals lists the user's live grants with the owning app's
// display name where approved.
func (s *AuthService) ListApprovals(ctx context.Context, userID int64) ([]Approval, error) {
	ctx, span := s.tracer.Start(ctx, "auth.approvals")
	defer span.End()

	tokens, err := s.tokens.ListRefreshTokensByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	approvals := make([]Approval, 0, len(tokens))
	for _, token := range tokens {
		approval := Approval{
			Token:    token.Token,
			ClientID: token.ClientID,
			Scopes:   token.Scopes,
			Expiry:   token.Expiry.Unix(),
		}
		app, err := s.apps.Get(ctx, token.ClientID, 0)
		if err == nil && app.NameApproved() {
			approval.AppName = app.AppName
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load application: %w", err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, nil
}

// RevokeApproval deletes one of the user's refresh tokens and every
// access token under it.
func (s *AuthService) RevokeApproval(ctx context.Context, token string, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "auth.revoke")
	defer span.End()

	ok, err := s.tokens.DeleteRefreshToken(ctx, token, userID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if !ok {
		return newOAuthError(http.StatusNotFound, "not_found", "no such grant")
	}
	s.audit("grant revoked", zap.Int64("user_id", userID))
	return nil
}

// authenticateClient verifies the client credential pair. Unknown ids
// and wrong secrets are indistinguishable to the caller, and the secret
// comparison is constant-time.
func (s *AuthService) authenticateClient(ctx context.Context, clientID int32, clientSecret string) error {
	app, err := s.apps.Get(ctx, clientID, 0)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return newOAuthError(http.StatusUnauthorized, "unauthenticated", "invalid client credentials")
		}
		return fmt.Errorf("load application: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(app.ClientSecret), []byte(clientSecret)) != 1 {
		return newOAuthError(http.StatusUnauthorized, "unauthenticated", "invalid client credentials")
	}
	return nil
}

func (s *AuthService) mintAccessToken(ctx context.Context, refresh domain.RefreshToken, now time.Time) (domain.AccessToken, error) {
	value, err := randomHex(64)
	if err != nil {
		return domain.AccessToken{}, err
	}
	access := domain.AccessToken{
		Token:        value,
		RefreshToken: refresh.Token,
		ClientID:     refresh.ClientID,
		UserID:       refresh.UserID,
		Expiry:       now.Add(s.cfg.AccessTokenTTL),
	}
	if err := s.tokens.SaveAccessToken(ctx, access); err != nil {
		return domain.AccessToken{}, fmt.Errorf("save access token: %w", err)
	}
	return access, nil
}

func (s *AuthService) audit(event string, fields ...zap.Field) {
	s.logger.Info(event, fields...)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
