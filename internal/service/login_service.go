package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/adapter/scratch"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/vercode"
)

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// Challenge is what a user needs to prove account ownership: post a
// comment containing Code on their own profile, then confirm with CSRF.
type Challenge struct {
	Username string `json:"username"`
	CSRF     string `json:"csrf"`
	Code     string `json:"code"`
}

// LoginService implements comment-code account verification. No
// password ever exists; ownership is proven by the ability to comment
// as the account.
type LoginService struct {
	scratch    scratch.Client
	scratchers repository.ScratcherRepository
	sessions   repository.SessionStore
	cfg        config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewLoginService constructs the verifier.
func NewLoginService(client scratch.Client, scratchers repository.ScratcherRepository, sessions repository.SessionStore, cfg config.Config, logger *zap.Logger, tracer trace.Tracer) *LoginService {
	return &LoginService{
		scratch:    client,
		scratchers: scratchers,
		sessions:   sessions,
		cfg:        cfg,
		logger:     logger,
		tracer:     tracer,
	}
}

// IssueChallenge resolves the username upstream, records the account
// mapping, and derives the verification code from the session nonce.
// The code stays valid for the remainder of the current time bucket.
func (s *LoginService) IssueChallenge(ctx context.Context, sess *domain.Session, username string) (Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "login.challenge")
	defer span.End()

	if !usernameRE.MatchString(username) {
		return Challenge{}, newOAuthError(http.StatusBadRequest, "invalid_request", "malformed username")
	}

	user, err := s.scratch.LookupUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return Challenge{}, newOAuthError(http.StatusNotFound, "not_found", "no such Scratch user")
		}
		s.logger.Warn("user lookup failed", zap.String("username", username), zap.Error(err))
		return Challenge{}, newOAuthError(http.StatusNotFound, "not_found", "could not resolve Scratch user")
	}

	if err := s.scratchers.Upsert(ctx, domain.Scratcher{UserID: user.ID, Username: user.Username}); err != nil {
		return Challenge{}, fmt.Errorf("record scratcher: %w", err)
	}

	if sess.Nonce == "" {
		nonce, err := randomHex(16)
		if err != nil {
			return Challenge{}, err
		}
		sess.Nonce = nonce
	}
	if err := s.sessions.Save(ctx, *sess, s.cfg.SessionTTL); err != nil {
		return Challenge{}, fmt.Errorf("save session: %w", err)
	}

	code := vercode.Derive(sess.Nonce, user.Username, vercode.Bucket(time.Now(), s.cfg.CodeExpiry))
	return Challenge{Username: user.Username, CSRF: sess.Nonce, Code: code}, nil
}

// ConfirmLogin re-derives the current code from the presented secret
// and scans the user's own comment feed for it. The feed author must be
// the canonical account name exactly; the text only has to contain the
// code. Upstream failures read as not verified so the client can retry.
func (s *LoginService) ConfirmLogin(ctx context.Context, sess *domain.Session, username, secret string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "login.confirm")
	defer span.End()

	if !usernameRE.MatchString(username) || secret == "" {
		return false, nil
	}

	canonical, err := s.canonicalName(ctx, username)
	if err != nil {
		return false, nil
	}
	code := vercode.Derive(secret, canonical, vercode.Bucket(time.Now(), s.cfg.CodeExpiry))

	html, err := s.scratch.FetchComments(ctx, canonical)
	if err != nil {
		s.logger.Warn("comment fetch failed", zap.String("username", canonical), zap.Error(err))
		return false, nil
	}
	for _, comment := range scratch.ExtractComments(html) {
		if comment.Author == canonical && strings.Contains(comment.Text, code) {
			scratcher, err := s.scratchers.GetByName(ctx, canonical)
			if err != nil {
				return false, fmt.Errorf("load scratcher: %w", err)
			}
			sess.UserID = scratcher.UserID
			if err := s.sessions.Save(ctx, *sess, s.cfg.SessionTTL); err != nil {
				return false, fmt.Errorf("save session: %w", err)
			}
			s.audit("login verified",
				zap.Int64("user_id", scratcher.UserID),
				zap.String("username", canonical))
			return true, nil
		}
	}
	return false, nil
}

// CheckLiveness reports whether the account still exists, judged by the
// deleted-profile marker in its comment feed. When the feed cannot be
// fetched the account is presumed present.
func (s *LoginService) CheckLiveness(ctx context.Context, username string) bool {
	ctx, span := s.tracer.Start(ctx, "login.liveness")
	defer span.End()

	html, err := s.scratch.FetchComments(ctx, username)
	if err != nil {
		s.logger.Warn("liveness fetch failed", zap.String("username", username), zap.Error(err))
		return true
	}
	return !scratch.AccountGone(html)
}

// canonicalName prefers the stored mapping and falls back to a fresh
// upstream lookup for users confirming without a prior challenge.
func (s *LoginService) canonicalName(ctx context.Context, username string) (string, error) {
	scratcher, err := s.scratchers.GetByName(ctx, username)
	if err == nil {
		return scratcher.Username, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	user, err := s.scratch.LookupUser(ctx, username)
	if err != nil {
		return "", err
	}
	if err := s.scratchers.Upsert(ctx, domain.Scratcher{UserID: user.ID, Username: user.Username}); err != nil {
		return "", err
	}
	return user.Username, nil
}

func (s *LoginService) audit(event string, fields ...zap.Field) {
	s.logger.Info(event, fields...)
}
