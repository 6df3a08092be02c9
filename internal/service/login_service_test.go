package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/adapter/scratch"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/vercode"
)

func commentFeed(author, text string) string {
	return fmt.Sprintf(`<div id="comments-10" class="comment " data-comment-id="10">
  <div class="actions-wrap"></div>
  <div class="name">
      <a href="/users/%s">%s</a>
  </div>
  <div class="content">
      %s
  </div>
</div>`, author, author, text)
}

func TestIssueChallenge(t *testing.T) {
	env := newTestEnv()
	env.client.users["griffpatch"] = scratch.User{ID: 1882674, Username: "griffpatch"}

	sess := &domain.Session{ID: "sess-1"}
	challenge, err := env.login.IssueChallenge(context.Background(), sess, "griffpatch")
	require.NoError(t, err)
	require.Equal(t, "griffpatch", challenge.Username)
	require.NotEmpty(t, challenge.CSRF)
	require.Len(t, challenge.Code, 64)
	require.Equal(t, sess.Nonce, challenge.CSRF)

	// The account mapping was recorded.
	scratcher, err := env.scratchers.GetByName(context.Background(), "GRIFFPATCH")
	require.NoError(t, err)
	require.Equal(t, int64(1882674), scratcher.UserID)

	// Reissuing keeps the session nonce, so the code is stable within
	// the bucket.
	again, err := env.login.IssueChallenge(context.Background(), sess, "griffpatch")
	require.NoError(t, err)
	require.Equal(t, challenge.Code, again.Code)
}

func TestIssueChallengeRejections(t *testing.T) {
	env := newTestEnv()
	sess := &domain.Session{ID: "sess-1"}

	for _, name := range []string{"ab", "has space", "toolongtoolongtoolong", "bad!char", ""} {
		_, err := env.login.IssueChallenge(context.Background(), sess, name)
		requireOAuthStatus(t, err, 400)
	}

	_, err := env.login.IssueChallenge(context.Background(), sess, "nobody")
	requireOAuthStatus(t, err, 404)
}

func TestConfirmLogin(t *testing.T) {
	env := newTestEnv()
	env.client.users["griffpatch"] = scratch.User{ID: 1882674, Username: "griffpatch"}

	sess := &domain.Session{ID: "sess-1"}
	challenge, err := env.login.IssueChallenge(context.Background(), sess, "griffpatch")
	require.NoError(t, err)

	env.client.commentsHTML = commentFeed("griffpatch", "here you go: "+challenge.Code)
	ok, err := env.login.ConfirmLogin(context.Background(), sess, "griffpatch", challenge.CSRF)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1882674), sess.UserID)

	// The persisted session is authenticated too.
	stored, err := env.sessions.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, int64(1882674), stored.UserID)
}

func TestConfirmLoginRejectsForgedComment(t *testing.T) {
	env := newTestEnv()
	env.client.users["griffpatch"] = scratch.User{ID: 1882674, Username: "griffpatch"}

	sess := &domain.Session{ID: "sess-1"}
	challenge, err := env.login.IssueChallenge(context.Background(), sess, "griffpatch")
	require.NoError(t, err)

	// Right code, wrong author: somebody pasted the code on the profile.
	env.client.users["imposter"] = scratch.User{ID: 9, Username: "imposter"}
	env.client.commentsHTML = commentFeed("imposter", challenge.Code)
	ok, err := env.login.ConfirmLogin(context.Background(), sess, "griffpatch", challenge.CSRF)
	require.NoError(t, err)
	require.False(t, ok)

	// Right author, wrong code.
	env.client.commentsHTML = commentFeed("griffpatch", "not the code")
	ok, err = env.login.ConfirmLogin(context.Background(), sess, "griffpatch", challenge.CSRF)
	require.NoError(t, err)
	require.False(t, ok)

	// Wrong secret derives a different code.
	env.client.commentsHTML = commentFeed("griffpatch", challenge.Code)
	ok, err = env.login.ConfirmLogin(context.Background(), sess, "griffpatch", "other-secret")
	require.NoError(t, err)
	require.False(t, ok)

	require.Zero(t, sess.UserID)
}

func TestConfirmLoginAuthorCaseExact(t *testing.T) {
	env := newTestEnv()
	env.client.users["griffpatch"] = scratch.User{ID: 1882674, Username: "griffpatch"}

	sess := &domain.Session{ID: "sess-1"}
	challenge, err := env.login.IssueChallenge(context.Background(), sess, "GriffPatch")
	require.NoError(t, err)
	// Challenge canonicalizes to the upstream casing.
	require.Equal(t, "griffpatch", challenge.Username)

	code := vercode.Derive(challenge.CSRF, "griffpatch", vercode.Bucket(time.Now(), env.cfg.CodeExpiry))
	env.client.commentsHTML = commentFeed("GriffPatch", code)
	ok, err := env.login.ConfirmLogin(context.Background(), sess, "griffpatch", challenge.CSRF)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfirmLoginUpstreamFailureIsRetryable(t *testing.T) {
	env := newTestEnv()
	env.client.users["griffpatch"] = scratch.User{ID: 1882674, Username: "griffpatch"}

	sess := &domain.Session{ID: "sess-1"}
	challenge, err := env.login.IssueChallenge(context.Background(), sess, "griffpatch")
	require.NoError(t, err)

	env.client.fetchErr = errors.New("scratch is down")
	ok, err := env.login.ConfirmLogin(context.Background(), sess, "griffpatch", challenge.CSRF)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckLiveness(t *testing.T) {
	env := newTestEnv()

	env.client.commentsHTML = commentFeed("griffpatch", "hello")
	require.True(t, env.login.CheckLiveness(context.Background(), "griffpatch"))

	env.client.commentsHTML = `<html><h3 class="status-code">404</h3></html>`
	require.False(t, env.login.CheckLiveness(context.Background(), "griffpatch"))

	// Unknown beats gone.
	env.client.fetchErr = errors.New("timeout")
	require.True(t, env.login.CheckLiveness(context.Background(), "griffpatch"))
}
