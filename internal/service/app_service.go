package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

// AppView is the owner-facing projection of an application. The secret
// is populated only on registration and explicit reset.
type AppView struct {
	ClientID     int32    `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	AppName      *string  `json:"app_name"`
	Approved     bool     `json:"approved"`
	RedirectURIs []string `json:"redirect_uris"`
}

// UpdateAppParams carries a partial application update. The Set flags
// distinguish "field absent" from "field present with zero value".
type UpdateAppParams struct {
	ResetSecret bool

	AppName    *string
	AppNameSet bool

	RedirectURIs    []string
	RedirectURIsSet bool
}

// AppService manages application registration for logged-in owners.
type AppService struct {
	apps   repository.AppRepository
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAppService constructs the application management service.
func NewAppService(apps repository.AppRepository, logger *zap.Logger, tracer trace.Tracer) *AppService {
	return &AppService{apps: apps, logger: logger, tracer: tracer}
}

// List returns the caller's applications as partials.
func (s *AppService) List(ctx context.Context, ownerID int64) ([]domain.PartialApplication, error) {
	ctx, span := s.tracer.Start(ctx, "app.list")
	defer span.End()

	partials, err := s.apps.ListPartial(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return partials, nil
}

// Get loads one of the caller's applications. The stored secret is
// redacted.
func (s *AppService) Get(ctx context.Context, clientID int32, ownerID int64) (AppView, error) {
	ctx, span := s.tracer.Start(ctx, "app.get")
	defer span.End()

	app, err := s.apps.Get(ctx, clientID, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AppView{}, newOAuthError(http.StatusNotFound, "not_found", "no such application")
		}
		return AppView{}, fmt.Errorf("load application: %w", err)
	}
	return viewOf(app, false), nil
}

// Register creates an application owned by the caller and returns it
// with the freshly minted secret.
func (s *AppService) Register(ctx context.Context, ownerID int64, appName *string, redirectURIs []string) (AppView, error) {
	ctx, span := s.tracer.Start(ctx, "app.register")
	defer span.End()

	clientID, err := randomClientID()
	if err != nil {
		return AppView{}, err
	}
	secret, err := randomHex(32)
	if err != nil {
		return AppView{}, err
	}

	flags := 0
	if appName == nil {
		// A nameless app has nothing to moderate.
		flags |= domain.FlagNameApproved
	}

	app := domain.Application{
		ClientID:     clientID,
		ClientSecret: secret,
		AppName:      appName,
		OwnerID:      ownerID,
		Flags:        flags,
		RedirectURIs: cleanURIs(redirectURIs),
		CreatedAt:    time.Now(),
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return AppView{}, fmt.Errorf("create application: %w", err)
	}

	s.audit("application registered",
		zap.Int32("client_id", clientID),
		zap.Int64("owner_id", ownerID))
	return viewOf(app, true), nil
}

// Update applies a partial update to one of the caller's applications.
// Changing the name clears moderator approval unless the new name is
// null. The secret is returned only when it was reset.
func (s *AppService) Update(ctx context.Context, clientID int32, ownerID int64, params UpdateAppParams) (AppView, error) {
	ctx, span := s.tracer.Start(ctx, "app.update")
	defer span.End()

	app, err := s.apps.Get(ctx, clientID, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AppView{}, newOAuthError(http.StatusNotFound, "not_found", "no such application")
		}
		return AppView{}, fmt.Errorf("load application: %w", err)
	}

	if params.ResetSecret {
		secret, err := randomHex(32)
		if err != nil {
			return AppView{}, err
		}
		if err := s.apps.UpdateSecret(ctx, clientID, secret); err != nil {
			return AppView{}, fmt.Errorf("reset secret: %w", err)
		}
		app.ClientSecret = secret
		s.audit("client secret reset", zap.Int32("client_id", clientID))
	}

	if params.AppNameSet {
		flags := app.Flags &^ domain.FlagNameApproved
		if params.AppName == nil {
			flags |= domain.FlagNameApproved
		}
		if err := s.apps.UpdateName(ctx, clientID, params.AppName, flags); err != nil {
			return AppView{}, fmt.Errorf("update name: %w", err)
		}
		app.AppName = params.AppName
		app.Flags = flags
	}

	if params.RedirectURIsSet {
		uris := cleanURIs(params.RedirectURIs)
		if err := s.apps.ReplaceRedirectURIs(ctx, clientID, uris); err != nil {
			return AppView{}, fmt.Errorf("replace redirect uris: %w", err)
		}
		app.RedirectURIs = uris
	}

	return viewOf(app, params.ResetSecret), nil
}

// Delete removes one of the caller's applications along with every
// credential issued through it.
func (s *AppService) Delete(ctx context.Context, clientID int32, ownerID int64) error {
	ctx, span := s.tracer.Start(ctx, "app.delete")
	defer span.End()

	if _, err := s.apps.Get(ctx, clientID, ownerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return newOAuthError(http.StatusNotFound, "not_found", "no such application")
		}
		return fmt.Errorf("load application: %w", err)
	}
	if err := s.apps.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	s.audit("application deleted",
		zap.Int32("client_id", clientID),
		zap.Int64("owner_id", ownerID))
	return nil
}

func (s *AppService) audit(event string, fields ...zap.Field) {
	s.logger.Info(event, fields...)
}

func viewOf(app domain.Application, revealSecret bool) AppView {
	view := AppView{
		ClientID:     app.ClientID,
		AppName:      app.AppName,
		Approved:     app.NameApproved(),
		RedirectURIs: app.RedirectURIs,
	}
	if view.RedirectURIs == nil {
		view.RedirectURIs = []string{}
	}
	if revealSecret {
		view.ClientSecret = app.ClientSecret
	}
	return view
}

func cleanURIs(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		if trimmed := strings.TrimSpace(uri); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
