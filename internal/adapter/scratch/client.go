// Package scratch talks to the Scratch website: the public users API
// for identity lookups and the site-api comments feed the verification
// protocol observes.
package scratch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
)

// User is the subset of the Scratch profile the service needs: the
// numeric id and the canonically-cased username.
type User struct {
	ID       int64
	Username string
}

// Comment is one (author, text) pair extracted from a profile's
// comments feed.
type Comment struct {
	Author string
	Text   string
}

// Client encapsulates outbound HTTP calls to Scratch.
type Client interface {
	// LookupUser resolves a username against the users API. Returns
	// domain.ErrUserNotFound when Scratch has no such account.
	LookupUser(ctx context.Context, username string) (User, error)
	// FetchComments returns the raw HTML of the profile's comments
	// feed, first page.
	FetchComments(ctx context.Context, username string) (string, error)
}

// SiteClient is the default HTTP implementation.
type SiteClient struct {
	httpClient *http.Client
	apiBase    string
	siteBase   string
}

var _ Client = (*SiteClient)(nil)

// NewSiteClient constructs the default Client. A nil httpClient gets a
// 5-second timeout; upstream fetches must never hang a request.
func NewSiteClient(httpClient *http.Client, apiBase, siteBase string) *SiteClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &SiteClient{httpClient: httpClient, apiBase: apiBase, siteBase: siteBase}
}

func (c *SiteClient) LookupUser(ctx context.Context, username string) (User, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.apiBase, url.PathEscape(username))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if status == http.StatusNotFound {
		return User{}, domain.ErrUserNotFound
	}
	if status >= 300 {
		return User{}, fmt.Errorf("lookup user: status=%d", status)
	}

	var profile struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return User{}, fmt.Errorf("decode user profile: %w", err)
	}
	if profile.ID == 0 || profile.Username == "" {
		return User{}, domain.ErrUserNotFound
	}
	return User{ID: profile.ID, Username: profile.Username}, nil
}

func (c *SiteClient) FetchComments(ctx context.Context, username string) (string, error) {
	// The salt busts any intermediate cache so a just-posted comment
	// is visible.
	endpoint := fmt.Sprintf("%s/site-api/comments/user/%s?page=1&salt=%s",
		c.siteBase, url.PathEscape(username), strconv.FormatUint(rand.Uint64(), 10))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("fetch comments: %w", err)
	}
	// A 404 page still carries the account-gone marker; return the
	// body either way and let the caller interpret it.
	_ = status
	return string(body), nil
}

func (c *SiteClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// commentRE matches the site-api comment markup. RE2 has no
// backreferences, so the author appears as two captures which must
// agree, mirroring the profile-link structure of the feed.
var commentRE = regexp.MustCompile(`(?s)<div id="comments-\d+" class="comment +" data-comment-id="\d+">.*?<div class="actions-wrap">.*?<div class="name">\s+<a href="/users/([_a-zA-Z0-9-]+)">([_a-zA-Z0-9-]+)</a>\s+</div>\s+<div class="content">\s*(.*?)\s*</div>`)

// ExtractComments pulls (author, text) pairs out of the feed HTML with
// a tolerant pattern match. Markup that doesn't match yields no pairs;
// it is never an error.
func ExtractComments(html string) []Comment {
	matches := commentRE.FindAllStringSubmatch(html, -1)
	comments := make([]Comment, 0, len(matches))
	for _, m := range matches {
		if m[1] != m[2] {
			continue
		}
		comments = append(comments, Comment{Author: m[1], Text: m[3]})
	}
	return comments
}

// goneMarker is how the site signals a deleted or renamed account
// inside the comments response.
const goneMarker = `<h3 class="status-code">404</h3>`

// AccountGone reports whether the feed HTML carries the account-gone
// marker.
func AccountGone(html string) bool {
	return strings.Contains(html, goneMarker)
}
