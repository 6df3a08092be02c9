package domain

import "time"

// Application flag bits.
const (
	// FlagNameApproved marks an app name as moderator-approved. Apps
	// registered without a name are approved automatically.
	FlagNameApproved = 1
)

// Application is a registered OAuth client.
type Application struct {
	ClientID     int32
	ClientSecret string
	AppName      *string
	OwnerID      int64
	Flags        int
	RedirectURIs []string
	CreatedAt    time.Time
}

// NameApproved reports whether the display name may be shown verbatim.
func (a Application) NameApproved() bool {
	return a.Flags&FlagNameApproved != 0
}

// PartialApplication is the listing projection of an Application. The
// client secret is never part of it.
type PartialApplication struct {
	ClientID int32   `json:"client_id"`
	AppName  *string `json:"app_name"`
}

// Authing is a pending authorization: the single-use intent record
// created on consent and consumed by the code-for-token exchange.
type Authing struct {
	Code        string
	ClientID    int32
	UserID      int64
	State       string
	RedirectURI string
	Scopes      []string
	Expiry      time.Time
}

// RefreshToken is the long-lived credential. At most one exists per
// (client, user) pair; issuing a new one replaces the old wholesale.
type RefreshToken struct {
	Token    string
	ClientID int32
	UserID   int64
	Scopes   []string
	Expiry   time.Time
}

// AccessToken is the short-lived credential minted from a refresh token.
// The refresh token back-reference is informational, not ownership.
type AccessToken struct {
	Token        string
	RefreshToken string
	ClientID     int32
	UserID       int64
	Expiry       time.Time
}

// Scratcher maps a Scratch account to the numeric id used everywhere
// else. Username keeps the case Scratch reports; lookups go through the
// lower-cased key.
type Scratcher struct {
	UserID   int64
	Username string
}

// Session is the browser session backing the interactive flows. UserID
// is zero until the comment-code login completes. Nonce is the
// session-scoped secret the verification code is derived from. Authing
// holds the pending authorization code so repeated consent posts within
// one session reuse it.
type Session struct {
	ID      string `json:"id"`
	UserID  int64  `json:"user_id"`
	Nonce   string `json:"nonce,omitempty"`
	Authing string `json:"authing,omitempty"`
}
