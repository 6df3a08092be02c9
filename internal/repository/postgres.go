package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AppRepository       = (*PostgresAppRepo)(nil)
	_ AuthingRepository   = (*PostgresAuthingRepo)(nil)
	_ TokenRepository     = (*PostgresTokenRepo)(nil)
	_ ScratcherRepository = (*PostgresScratcherRepo)(nil)
)

// PostgresAppRepo implements AppRepository on pgx.
type PostgresAppRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAppRepo(db *pgxpool.Pool) *PostgresAppRepo {
	return &PostgresAppRepo{db: db}
}

func (r *PostgresAppRepo) Create(ctx context.Context, app domain.Application) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO soa2_applications (client_id, client_secret, app_name, owner_id, flags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ClientID, app.ClientSecret, app.AppName, app.OwnerID, app.Flags, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	if len(app.RedirectURIs) > 0 {
		if err := r.insertRedirectURIs(ctx, app.ClientID, app.RedirectURIs); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresAppRepo) Get(ctx context.Context, clientID int32, ownerID int64) (domain.Application, error) {
	query := `SELECT client_id, client_secret, app_name, owner_id, flags, created_at
		 FROM soa2_applications WHERE client_id = $1`
	args := []any{clientID}
	if ownerID != 0 {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}

	var app domain.Application
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&app.ClientID, &app.ClientSecret, &app.AppName, &app.OwnerID, &app.Flags, &app.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("get application: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT redirect_uri FROM soa2_redirect_uris WHERE client_id = $1 ORDER BY redirect_uri`,
		clientID,
	)
	if err != nil {
		return domain.Application{}, fmt.Errorf("list redirect uris: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return domain.Application{}, fmt.Errorf("scan redirect uri: %w", err)
		}
		app.RedirectURIs = append(app.RedirectURIs, uri)
	}
	if err := rows.Err(); err != nil {
		return domain.Application{}, fmt.Errorf("list redirect uris: %w", err)
	}
	return app, nil
}

func (r *PostgresAppRepo) ListPartial(ctx context.Context, ownerID int64) ([]domain.PartialApplication, error) {
	rows, err := r.db.Query(ctx,
		`SELECT client_id, app_name FROM soa2_applications WHERE owner_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]domain.PartialApplication, 0)
	for rows.Next() {
		var app domain.PartialApplication
		if err := rows.Scan(&app.ClientID, &app.AppName); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

func (r *PostgresAppRepo) UpdateSecret(ctx context.Context, clientID int32, secret string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE soa2_applications SET client_secret = $2 WHERE client_id = $1`,
		clientID, secret,
	); err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return nil
}

func (r *PostgresAppRepo) UpdateName(ctx context.Context, clientID int32, name *string, flags int) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE soa2_applications SET app_name = $2, flags = $3 WHERE client_id = $1`,
		clientID, name, flags,
	); err != nil {
		return fmt.Errorf("update app name: %w", err)
	}
	return nil
}

func (r *PostgresAppRepo) ReplaceRedirectURIs(ctx context.Context, clientID int32, uris []string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_redirect_uris WHERE client_id = $1`, clientID,
	); err != nil {
		return fmt.Errorf("delete redirect uris: %w", err)
	}
	return r.insertRedirectURIs(ctx, clientID, uris)
}

func (r *PostgresAppRepo) insertRedirectURIs(ctx context.Context, clientID int32, uris []string) error {
	for _, uri := range uris {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO soa2_redirect_uris (client_id, redirect_uri) VALUES ($1, $2)`,
			clientID, uri,
		); err != nil {
			return fmt.Errorf("insert redirect uri: %w", err)
		}
	}
	return nil
}

func (r *PostgresAppRepo) Delete(ctx context.Context, clientID int32) error {
	// No cross-statement transaction is assumed; each delete is
	// individually atomic, mirroring the cascade order of the tables.
	steps := []string{
		`DELETE FROM soa2_redirect_uris WHERE client_id = $1`,
		`DELETE FROM soa2_access_tokens WHERE client_id = $1`,
		`DELETE FROM soa2_refresh_tokens WHERE client_id = $1`,
		`DELETE FROM soa2_authings WHERE client_id = $1`,
		`DELETE FROM soa2_applications WHERE client_id = $1`,
	}
	for _, step := range steps {
		if _, err := r.db.Exec(ctx, step, clientID); err != nil {
			return fmt.Errorf("delete application: %w", err)
		}
	}
	return nil
}

// PostgresAuthingRepo implements AuthingRepository.
type PostgresAuthingRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuthingRepo(db *pgxpool.Pool) *PostgresAuthingRepo {
	return &PostgresAuthingRepo{db: db}
}

func (r *PostgresAuthingRepo) Create(ctx context.Context, authing domain.Authing) error {
	var redirect *string
	if authing.RedirectURI != "" {
		redirect = &authing.RedirectURI
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO soa2_authings (code, client_id, user_id, state, redirect_uri, scopes, expiry)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		authing.Code, authing.ClientID, authing.UserID, authing.State,
		redirect, domain.JoinScopes(authing.Scopes), authing.Expiry.Unix(),
	); err != nil {
		return fmt.Errorf("insert authing: %w", err)
	}
	return nil
}

func (r *PostgresAuthingRepo) Get(ctx context.Context, code string) (domain.Authing, error) {
	if err := r.sweep(ctx); err != nil {
		return domain.Authing{}, err
	}
	var (
		authing  domain.Authing
		redirect *string
		scopes   string
		expiry   int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT code, client_id, user_id, state, redirect_uri, scopes, expiry
		 FROM soa2_authings WHERE code = $1`, code,
	).Scan(&authing.Code, &authing.ClientID, &authing.UserID, &authing.State, &redirect, &scopes, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Authing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Authing{}, fmt.Errorf("get authing: %w", err)
	}
	if redirect != nil {
		authing.RedirectURI = *redirect
	}
	authing.Scopes = domain.ParseScopes(scopes)
	authing.Expiry = time.Unix(expiry, 0)
	return authing, nil
}

func (r *PostgresAuthingRepo) Consume(ctx context.Context, code string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM soa2_authings WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("consume authing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresAuthingRepo) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM soa2_authings WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("cancel authing: %w", err)
	}
	return nil
}

func (r *PostgresAuthingRepo) sweep(ctx context.Context) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_authings WHERE expiry <= $1`, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("sweep authings: %w", err)
	}
	return nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(db *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

func (r *PostgresTokenRepo) SaveRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_access_tokens WHERE refresh_token IN
		 (SELECT token FROM soa2_refresh_tokens WHERE client_id = $1 AND user_id = $2)`,
		token.ClientID, token.UserID,
	); err != nil {
		return fmt.Errorf("purge descended access tokens: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_refresh_tokens WHERE client_id = $1 AND user_id = $2`,
		token.ClientID, token.UserID,
	); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO soa2_refresh_tokens (token, client_id, user_id, scopes, expiry)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.Token, token.ClientID, token.UserID, domain.JoinScopes(token.Scopes), token.Expiry.Unix(),
	); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetRefreshToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		scopes string
		expiry int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT token, client_id, user_id, scopes, expiry FROM soa2_refresh_tokens WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.ClientID, &t.UserID, &scopes, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	t.Scopes = domain.ParseScopes(scopes)
	t.Expiry = time.Unix(expiry, 0)
	return t, nil
}

func (r *PostgresTokenRepo) ListRefreshTokensByUser(ctx context.Context, userID int64) ([]domain.RefreshToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT token, client_id, user_id, scopes, expiry FROM soa2_refresh_tokens
		 WHERE user_id = $1 ORDER BY expiry`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]domain.RefreshToken, 0)
	for rows.Next() {
		var (
			t      domain.RefreshToken
			scopes string
			expiry int64
		)
		if err := rows.Scan(&t.Token, &t.ClientID, &t.UserID, &scopes, &expiry); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		t.Scopes = domain.ParseScopes(scopes)
		t.Expiry = time.Unix(expiry, 0)
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}

func (r *PostgresTokenRepo) DeleteRefreshToken(ctx context.Context, token string, userID int64) (bool, error) {
	// The ownership-scoped delete decides; descended access tokens go
	// only when the refresh row actually existed for this user. Once
	// the refresh row is gone its access tokens no longer resolve, so
	// purging after is safe.
	tag, err := r.db.Exec(ctx,
		`DELETE FROM soa2_refresh_tokens WHERE token = $1 AND user_id = $2`,
		token, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_access_tokens WHERE refresh_token = $1`, token,
	); err != nil {
		return false, fmt.Errorf("purge descended access tokens: %w", err)
	}
	return true, nil
}

func (r *PostgresTokenRepo) SaveAccessToken(ctx context.Context, token domain.AccessToken) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_access_tokens WHERE client_id = $1 AND refresh_token = $2`,
		token.ClientID, token.RefreshToken,
	); err != nil {
		return fmt.Errorf("replace access token: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO soa2_access_tokens (token, refresh_token, client_id, user_id, expiry)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.Token, token.RefreshToken, token.ClientID, token.UserID, token.Expiry.Unix(),
	); err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetAccessToken(ctx context.Context, token string) (domain.AccessToken, error) {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM soa2_access_tokens WHERE expiry <= $1`, time.Now().Unix(),
	); err != nil {
		return domain.AccessToken{}, fmt.Errorf("sweep access tokens: %w", err)
	}
	var (
		t      domain.AccessToken
		expiry int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT token, refresh_token, client_id, user_id, expiry FROM soa2_access_tokens WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.RefreshToken, &t.ClientID, &t.UserID, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccessToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("get access token: %w", err)
	}
	t.Expiry = time.Unix(expiry, 0)
	return t, nil
}

// PostgresScratcherRepo implements ScratcherRepository.
type PostgresScratcherRepo struct {
	db *pgxpool.Pool
}

func NewPostgresScratcherRepo(db *pgxpool.Pool) *PostgresScratcherRepo {
	return &PostgresScratcherRepo{db: db}
}

func (r *PostgresScratcherRepo) Upsert(ctx context.Context, scratcher domain.Scratcher) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO soa2_scratchers (user_id, user_name, user_name_lower)
		 VALUES ($1, $2, lower($2))
		 ON CONFLICT (user_id) DO UPDATE
		 SET user_name = EXCLUDED.user_name, user_name_lower = EXCLUDED.user_name_lower`,
		scratcher.UserID, scratcher.Username,
	); err != nil {
		return fmt.Errorf("upsert scratcher: %w", err)
	}
	return nil
}

func (r *PostgresScratcherRepo) GetByID(ctx context.Context, userID int64) (domain.Scratcher, error) {
	var s domain.Scratcher
	err := r.db.QueryRow(ctx,
		`SELECT user_id, user_name FROM soa2_scratchers WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scratcher{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Scratcher{}, fmt.Errorf("get scratcher: %w", err)
	}
	return s, nil
}

func (r *PostgresScratcherRepo) GetByName(ctx context.Context, username string) (domain.Scratcher, error) {
	var s domain.Scratcher
	err := r.db.QueryRow(ctx,
		`SELECT user_id, user_name FROM soa2_scratchers WHERE user_name_lower = lower($1)`, username,
	).Scan(&s.UserID, &s.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scratcher{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Scratcher{}, fmt.Errorf("get scratcher by name: %w", err)
	}
	return s, nil
}
