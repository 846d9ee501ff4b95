package provider

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	ghhook "github.com/go-playground/webhooks/v6/github"

	"github.com/deppfellow/trackr/internal/model"
)

var (
	// ErrIgnoredEvent means the delivery is valid but not a push.
	ErrIgnoredEvent = errors.New("webhook event ignored")
	ErrBadSignature = errors.New("webhook signature invalid")
	ErrBadPayload   = errors.New("webhook payload invalid")
)

const maxWebhookBody = 5 << 20

// Push is a normalized push delivery.
type Push struct {
	Provider   string
	ExternalID string
	Commits    []model.CommitData
}

// GitHubWebhook verifies and parses GitHub push deliveries. Without a
// secret every delivery is rejected.
type GitHubWebhook struct {
	hook   *ghhook.Webhook
	signed bool
}

func NewGitHubWebhook(secret string) (*GitHubWebhook, error) {
	var opts []ghhook.Option
	if secret != "" {
		opts = append(opts, ghhook.Options.Secret(secret))
	}
	hook, err := ghhook.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("github webhook: %w", err)
	}
	return &GitHubWebhook{hook: hook, signed: secret != ""}, nil
}

func (w *GitHubWebhook) Parse(r *http.Request) (*Push, error) {
	if !w.signed {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrBadSignature)
	}
	payload, err := w.hook.Parse(r, ghhook.PushEvent)
	if err != nil {
		switch {
		case errors.Is(err, ghhook.ErrEventNotFound):
			return nil, ErrIgnoredEvent
		case errors.Is(err, ghhook.ErrHMACVerificationFailed),
			errors.Is(err, ghhook.ErrMissingHubSignatureHeader):
			return nil, ErrBadSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	push, ok := payload.(ghhook.PushPayload)
	if !ok {
		return nil, ErrIgnoredEvent
	}

	out := &Push{
		Provider:   model.ProviderGitHub,
		ExternalID: fmt.Sprint(push.Repository.ID),
	}
	for _, c := range push.Commits {
		if !c.Distinct {
			continue
		}
		email := c.Author.Email
		if email == "" && c.Author.Username != "" {
			email = c.Author.Username + "@localhost"
		}
		cd := model.CommitData{
			ID:          c.ID,
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: email,
			Timestamp:   parseTime(c.Timestamp),
		}
		for _, f := range c.Added {
			cd.Patches = append(cd.Patches, model.FilePatch{Path: f, Type: model.FileAdded})
		}
		for _, f := range c.Removed {
			cd.Patches = append(cd.Patches, model.FilePatch{Path: f, Type: model.FileDeleted})
		}
		for _, f := range c.Modified {
			cd.Patches = append(cd.Patches, model.FilePatch{Path: f, Type: model.FileModified})
		}
		out.Commits = append(out.Commits, cd)
	}
	return out, nil
}

type bitbucketPush struct {
	Repository struct {
		UUID     string `json:"uuid"`
		FullName string `json:"full_name"`
	} `json:"repository"`
	Push struct {
		Changes []struct {
			Commits []bitbucketCommit `json:"commits"`
		} `json:"changes"`
	} `json:"push"`
}

// BitbucketWebhook accepts repo:push deliveries from Bitbucket's published
// address ranges.
type BitbucketWebhook struct {
	allowed []netip.Prefix
}

func NewBitbucketWebhook(ranges []string) (*BitbucketWebhook, error) {
	w := &BitbucketWebhook{}
	for _, r := range ranges {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, fmt.Errorf("bitbucket ip range %q: %w", r, err)
		}
		w.allowed = append(w.allowed, p)
	}
	return w, nil
}

// Allowed reports whether ip falls inside a configured range. No ranges
// means every address is accepted.
func (w *BitbucketWebhook) Allowed(ip string) bool {
	if len(w.allowed) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range w.allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (w *BitbucketWebhook) Parse(r *http.Request) (*Push, error) {
	if r.Header.Get("X-Event-Key") != "repo:push" {
		return nil, ErrIgnoredEvent
	}

	var payload bitbucketPush
	if err := decodeBody(r, &payload); err != nil {
		return nil, err
	}
	if payload.Repository.UUID == "" {
		return nil, fmt.Errorf("%w: repository.uuid missing", ErrBadPayload)
	}

	out := &Push{Provider: model.ProviderBitbucket, ExternalID: payload.Repository.UUID}
	for _, change := range payload.Push.Changes {
		for _, c := range change.Commits {
			name, email := ParseAuthor(c.Author.Raw)
			ts := c.Date
			out.Commits = append(out.Commits, model.CommitData{
				ID:          c.Hash,
				Message:     c.Message,
				AuthorName:  name,
				AuthorEmail: email,
				Timestamp:   &ts,
			})
		}
	}
	return out, nil
}

type vstsPush struct {
	EventType string `json:"eventType"`
	Resource  struct {
		Repository struct {
			ID string `json:"id"`
		} `json:"repository"`
		Commits []vstsPushCommit `json:"commits"`
	} `json:"resource"`
}

type vstsPushCommit struct {
	CommitID string `json:"commitId"`
	Comment  string `json:"comment"`
	Author   struct {
		Name  string    `json:"name"`
		Email string    `json:"email"`
		Date  time.Time `json:"date"`
	} `json:"author"`
}

// ParseVSTS decodes a git.push service hook. The caller checks the
// Shared-Secret header with SecretMatches once the repository is known.
func ParseVSTS(r *http.Request) (*Push, error) {
	var payload vstsPush
	if err := decodeBody(r, &payload); err != nil {
		return nil, err
	}
	if payload.EventType != "git.push" {
		return nil, ErrIgnoredEvent
	}
	if payload.Resource.Repository.ID == "" {
		return nil, fmt.Errorf("%w: resource.repository.id missing", ErrBadPayload)
	}

	out := &Push{Provider: model.ProviderVSTS, ExternalID: payload.Resource.Repository.ID}
	for _, c := range payload.Resource.Commits {
		ts := c.Author.Date
		out.Commits = append(out.Commits, model.CommitData{
			ID:          c.CommitID,
			Message:     c.Comment,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
			Timestamp:   &ts,
		})
	}
	return out, nil
}

// SecretMatches compares a received shared secret in constant time.
func SecretMatches(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func parseTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
