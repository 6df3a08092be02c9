package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/adapter/scratch"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

// In-memory repository fakes mirroring the Postgres semantics,
// including lazy expiry sweeps and rotation cascades.

type memAppRepo struct {
	mu   sync.Mutex
	apps map[int32]domain.Application
}

func newMemAppRepo() *memAppRepo {
	return &memAppRepo{apps: map[int32]domain.Application{}}
}

func (r *memAppRepo) Create(_ context.Context, app domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app.ClientID] = app
	return nil
}

func (r *memAppRepo) Get(_ context.Context, clientID int32, ownerID int64) (domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[clientID]
	if !ok || (ownerID != 0 && app.OwnerID != ownerID) {
		return domain.Application{}, domain.ErrNotFound
	}
	return app, nil
}

func (r *memAppRepo) ListPartial(_ context.Context, ownerID int64) ([]domain.PartialApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PartialApplication
	for _, app := range r.apps {
		if app.OwnerID == ownerID {
			out = append(out, domain.PartialApplication{ClientID: app.ClientID, AppName: app.AppName})
		}
	}
	return out, nil
}

func (r *memAppRepo) UpdateSecret(_ context.Context, clientID int32, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app := r.apps[clientID]
	app.ClientSecret = secret
	r.apps[clientID] = app
	return nil
}

func (r *memAppRepo) UpdateName(_ context.Context, clientID int32, name *string, flags int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app := r.apps[clientID]
	app.AppName = name
	app.Flags = flags
	r.apps[clientID] = app
	return nil
}

func (r *memAppRepo) ReplaceRedirectURIs(_ context.Context, clientID int32, uris []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app := r.apps[clientID]
	app.RedirectURIs = uris
	r.apps[clientID] = app
	return nil
}

func (r *memAppRepo) Delete(_ context.Context, clientID int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apps, clientID)
	return nil
}

type memAuthingRepo struct {
	mu       sync.Mutex
	authings map[string]domain.Authing
}

func newMemAuthingRepo() *memAuthingRepo {
	return &memAuthingRepo{authings: map[string]domain.Authing{}}
}

func (r *memAuthingRepo) Create(_ context.Context, authing domain.Authing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authings[authing.Code] = authing
	return nil
}

func (r *memAuthingRepo) Get(_ context.Context, code string) (domain.Authing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, a := range r.authings {
		if !a.Expiry.After(now) {
			delete(r.authings, key)
		}
	}
	authing, ok := r.authings[code]
	if !ok {
		return domain.Authing{}, domain.ErrNotFound
	}
	return authing, nil
}

func (r *memAuthingRepo) Consume(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.authings[code]; !ok {
		return false, nil
	}
	delete(r.authings, code)
	return true, nil
}

func (r *memAuthingRepo) DeleteByUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, a := range r.authings {
		if a.UserID == userID {
			delete(r.authings, key)
		}
	}
	return nil
}

type memTokenRepo struct {
	mu      sync.Mutex
	refresh map[string]domain.RefreshToken
	access  map[string]domain.AccessToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{
		refresh: map[string]domain.RefreshToken{},
		access:  map[string]domain.AccessToken{},
	}
}

func (r *memTokenRepo) SaveRefreshToken(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, old := range r.refresh {
		if old.ClientID == token.ClientID && old.UserID == token.UserID {
			for akey, a := range r.access {
				if a.RefreshToken == old.Token {
					delete(r.access, akey)
				}
			}
			delete(r.refresh, key)
		}
	}
	r.refresh[token.Token] = token
	return nil
}

func (r *memTokenRepo) GetRefreshToken(_ context.Context, token string) (domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.refresh[token]
	if !ok {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	return rt, nil
}

func (r *memTokenRepo) ListRefreshTokensByUser(_ context.Context, userID int64) ([]domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RefreshToken
	for _, rt := range r.refresh {
		if rt.UserID == userID {
			out = append(out, rt)
		}
	}
	return out, nil
}

func (r *memTokenRepo) DeleteRefreshToken(_ context.Context, token string, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.refresh[token]
	if !ok || rt.UserID != userID {
		return false, nil
	}
	for akey, a := range r.access {
		if a.RefreshToken == token {
			delete(r.access, akey)
		}
	}
	delete(r.refresh, token)
	return true, nil
}

func (r *memTokenRepo) SaveAccessToken(_ context.Context, token domain.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, a := range r.access {
		if a.ClientID == token.ClientID && a.RefreshToken == token.RefreshToken {
			delete(r.access, key)
		}
	}
	r.access[token.Token] = token
	return nil
}

func (r *memTokenRepo) GetAccessToken(_ context.Context, token string) (domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, a := range r.access {
		if !a.Expiry.After(now) {
			delete(r.access, key)
		}
	}
	at, ok := r.access[token]
	if !ok {
		return domain.AccessToken{}, domain.ErrNotFound
	}
	return at, nil
}

type memScratcherRepo struct {
	mu   sync.Mutex
	byID map[int64]domain.Scratcher
}

func newMemScratcherRepo() *memScratcherRepo {
	return &memScratcherRepo{byID: map[int64]domain.Scratcher{}}
}

func (r *memScratcherRepo) Upsert(_ context.Context, scratcher domain.Scratcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[scratcher.UserID] = scratcher
	return nil
}

func (r *memScratcherRepo) GetByID(_ context.Context, userID int64) (domain.Scratcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scratcher, ok := r.byID[userID]
	if !ok {
		return domain.Scratcher{}, domain.ErrNotFound
	}
	return scratcher, nil
}

func (r *memScratcherRepo) GetByName(_ context.Context, username string) (domain.Scratcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, scratcher := range r.byID {
		if strings.EqualFold(scratcher.Username, username) {
			return scratcher, nil
		}
	}
	return domain.Scratcher{}, domain.ErrNotFound
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]domain.Session{}}
}

func (s *memSessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *memSessionStore) Save(_ context.Context, session domain.Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// fakeScratchClient serves canned users and one comments page.
type fakeScratchClient struct {
	users        map[string]scratch.User
	commentsHTML string
	lookupErr    error
	fetchErr     error
}

func (c *fakeScratchClient) LookupUser(_ context.Context, username string) (scratch.User, error) {
	if c.lookupErr != nil {
		return scratch.User{}, c.lookupErr
	}
	user, ok := c.users[strings.ToLower(username)]
	if !ok {
		return scratch.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (c *fakeScratchClient) FetchComments(_ context.Context, _ string) (string, error) {
	if c.fetchErr != nil {
		return "", c.fetchErr
	}
	return c.commentsHTML, nil
}

var (
	_ repository.AppRepository       = (*memAppRepo)(nil)
	_ repository.AuthingRepository   = (*memAuthingRepo)(nil)
	_ repository.TokenRepository     = (*memTokenRepo)(nil)
	_ repository.ScratcherRepository = (*memScratcherRepo)(nil)
	_ repository.SessionStore        = (*memSessionStore)(nil)
	_ scratch.Client                 = (*fakeScratchClient)(nil)
)

type testEnv struct {
	apps       *memAppRepo
	authings   *memAuthingRepo
	tokens     *memTokenRepo
	scratchers *memScratcherRepo
	sessions   *memSessionStore
	client     *fakeScratchClient

	cfg   config.Config
	app   *AppService
	login *LoginService
	auth  *AuthService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		apps:       newMemAppRepo(),
		authings:   newMemAuthingRepo(),
		tokens:     newMemTokenRepo(),
		scratchers: newMemScratcherRepo(),
		sessions:   newMemSessionStore(),
		client:     &fakeScratchClient{users: map[string]scratch.User{}},
		cfg: config.Config{
			CodeExpiry:      30 * time.Minute,
			AuthExpiry:      time.Hour,
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 265 * 24 * time.Hour,
			SessionTTL:      time.Hour,
		},
	}
	logger := zap.NewNop()
	tracer := noop.NewTracerProvider().Tracer("test")
	env.app = NewAppService(env.apps, logger, tracer)
	env.login = NewLoginService(env.client, env.scratchers, env.sessions, env.cfg, logger, tracer)
	env.auth = NewAuthService(env.apps, env.authings, env.tokens, env.scratchers, env.sessions, env.login, env.cfg, logger, tracer)
	return env
}
