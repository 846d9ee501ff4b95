package provider

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/model"
)

const githubPushBody = `{
  "ref": "refs/heads/main",
  "repository": {"id": 4242, "full_name": "acme/api"},
  "commits": [
    {"id": "c1", "distinct": true, "message": "one", "timestamp": "2024-03-01T10:00:00Z",
     "author": {"name": "Ann", "email": "ann@x.io", "username": "ann"},
     "added": ["a.go"], "removed": ["b.go"], "modified": ["c.go"]},
    {"id": "c2", "distinct": false, "message": "dup", "timestamp": "2024-03-01T10:00:00Z",
     "author": {"name": "Ann", "email": "ann@x.io", "username": "ann"}},
    {"id": "c3", "distinct": true, "message": "three", "timestamp": "2024-03-01T11:00:00Z",
     "author": {"name": "Bot", "email": "", "username": "bot"}}
  ]
}`

func signedGitHubRequest(t *testing.T, secret, event, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/extensions/github/webhook/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)

	mac1 := hmac.New(sha1.New, []byte(secret))
	mac1.Write([]byte(body))
	req.Header.Set("X-Hub-Signature", "sha1="+hex.EncodeToString(mac1.Sum(nil)))

	mac256 := hmac.New(sha256.New, []byte(secret))
	mac256.Write([]byte(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac256.Sum(nil)))
	return req
}

func TestGitHubWebhook_Push(t *testing.T) {
	hook, err := NewGitHubWebhook("s3cret")
	require.NoError(t, err)

	push, err := hook.Parse(signedGitHubRequest(t, "s3cret", "push", githubPushBody))
	require.NoError(t, err)

	assert.Equal(t, model.ProviderGitHub, push.Provider)
	assert.Equal(t, "4242", push.ExternalID)
	require.Len(t, push.Commits, 2)

	first := push.Commits[0]
	assert.Equal(t, "c1", first.ID)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, []model.FilePatch{
		{Path: "a.go", Type: model.FileAdded},
		{Path: "b.go", Type: model.FileDeleted},
		{Path: "c.go", Type: model.FileModified},
	}, first.Patches)

	assert.Equal(t, "bot@localhost", push.Commits[1].AuthorEmail)
}

func TestGitHubWebhook_BadSignature(t *testing.T) {
	hook, err := NewGitHubWebhook("s3cret")
	require.NoError(t, err)

	_, err = hook.Parse(signedGitHubRequest(t, "other", "push", githubPushBody))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestGitHubWebhook_NoSecretRejectsEverything(t *testing.T) {
	hook, err := NewGitHubWebhook("")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/extensions/github/webhook/", strings.NewReader(githubPushBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	_, err = hook.Parse(req)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = hook.Parse(signedGitHubRequest(t, "", "push", githubPushBody))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestGitHubWebhook_IgnoresOtherEvents(t *testing.T) {
	hook, err := NewGitHubWebhook("s3cret")
	require.NoError(t, err)

	_, err = hook.Parse(signedGitHubRequest(t, "s3cret", "issues", `{}`))
	assert.ErrorIs(t, err, ErrIgnoredEvent)
}

func TestBitbucketWebhook(t *testing.T) {
	hook, err := NewBitbucketWebhook([]string{"104.192.136.0/21", " ", "2401:1d80:1010::/64"})
	require.NoError(t, err)

	assert.True(t, hook.Allowed("104.192.137.10"))
	assert.True(t, hook.Allowed("::ffff:104.192.137.10"))
	assert.True(t, hook.Allowed("2401:1d80:1010::1"))
	assert.False(t, hook.Allowed("10.0.0.1"))
	assert.False(t, hook.Allowed("garbage"))

	body := `{"repository": {"uuid": "{abc}"},
	  "push": {"changes": [{"commits": [
	    {"hash": "h1", "message": "m", "date": "2024-01-01T00:00:00Z", "author": {"raw": "Ann <ann@x.io>"}}
	  ]}]}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-Event-Key", "repo:push")

	push, err := hook.Parse(req)
	require.NoError(t, err)
	assert.Equal(t, "{abc}", push.ExternalID)
	require.Len(t, push.Commits, 1)
	assert.Equal(t, "Ann", push.Commits[0].AuthorName)
	assert.Equal(t, "ann@x.io", push.Commits[0].AuthorEmail)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-Event-Key", "repo:fork")
	_, err = hook.Parse(req)
	assert.ErrorIs(t, err, ErrIgnoredEvent)
}

func TestBitbucketWebhook_NoRangesAllowsAll(t *testing.T) {
	hook, err := NewBitbucketWebhook(nil)
	require.NoError(t, err)
	assert.True(t, hook.Allowed("10.0.0.1"))

	_, err = NewBitbucketWebhook([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestParseVSTS(t *testing.T) {
	body := `{"eventType": "git.push", "resource": {"repository": {"id": "repo-guid"},
	  "commits": [{"commitId": "v1", "comment": "c", "author": {"name": "Ann", "email": "ann@x.io", "date": "2024-01-01T00:00:00Z"}}]}}`
	push, err := ParseVSTS(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, "repo-guid", push.ExternalID)
	require.Len(t, push.Commits, 1)
	assert.Equal(t, "v1", push.Commits[0].ID)

	_, err = ParseVSTS(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"eventType": "workitem.updated"}`)))
	assert.ErrorIs(t, err, ErrIgnoredEvent)

	_, err = ParseVSTS(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, SecretMatches("abc", "abc"))
	assert.False(t, SecretMatches("abc", "abd"))
	assert.False(t, SecretMatches("", ""))
}
