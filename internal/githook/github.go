// Package githook registers relay routes as GitHub repository webhooks.
package githook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

var (
	ErrMissingToken           = errors.New("github token is required")
	ErrUnsupportedContentType = errors.New("github only delivers json or form payloads")
)

// DefaultEvents is used when a request names no events.
var DefaultEvents = []string{"push"}

// Request describes the webhook to ensure on a repository.
type Request struct {
	// Repo is "owner/name".
	Repo     string
	RouteKey string
	// ContentType is the route's incoming content type.
	ContentType string
	Secret      string
	Events      []string
	// Scheme of the public hook URL, "https" when empty.
	Scheme string
}

// Result reports what Register did.
type Result struct {
	HookID  int64
	URL     string
	Created bool
	Updated bool
}

// Registrar creates and updates repository webhooks.
type Registrar struct {
	client *github.Client
	logger *slog.Logger
}

// NewClient creates an authenticated GitHub client. apiURL overrides the
// API endpoint for GitHub Enterprise; empty selects api.github.com.
func NewClient(ctx context.Context, token, apiURL string) (*github.Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if apiURL != "" {
		base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

func New(client *github.Client, logger *slog.Logger) *Registrar {
	return &Registrar{client: client, logger: logger}
}

// Register ensures the repository has one active webhook pointing at the
// route. An existing hook with the same URL is updated in place.
func (r *Registrar) Register(ctx context.Context, req Request) (*Result, error) {
	owner, repo, err := SplitRepo(req.Repo)
	if err != nil {
		return nil, err
	}
	payloadType, err := PayloadType(req.ContentType)
	if err != nil {
		return nil, err
	}

	events := req.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	hookURL := HookURL(req.Scheme, req.RouteKey)

	config := map[string]interface{}{
		"url":          hookURL,
		"content_type": payloadType,
		"insecure_ssl": "0",
	}
	if req.Secret != "" {
		config["secret"] = req.Secret
	}

	existing, err := r.find(ctx, owner, repo, hookURL)
	if err != nil {
		return nil, err
	}

	active := true
	if existing == nil {
		created, _, err := r.client.Repositories.CreateHook(ctx, owner, repo, &github.Hook{
			Events: events,
			Active: &active,
			Config: config,
		})
		if err != nil {
			return nil, fmt.Errorf("creating webhook: %w", err)
		}
		r.logger.Info("created github webhook", "repo", req.Repo, "hook", req.RouteKey, "id", created.GetID())
		return &Result{HookID: created.GetID(), URL: hookURL, Created: true}, nil
	}

	// GitHub never returns the secret, so a configured one is always resent
	if upToDate(existing, payloadType, events) && req.Secret == "" {
		r.logger.Info("github webhook already up to date", "repo", req.Repo, "hook", req.RouteKey, "id", existing.GetID())
		return &Result{HookID: existing.GetID(), URL: hookURL}, nil
	}

	updated, _, err := r.client.Repositories.EditHook(ctx, owner, repo, existing.GetID(), &github.Hook{
		Events: events,
		Active: &active,
		Config: config,
	})
	if err != nil {
		return nil, fmt.Errorf("updating webhook %d: %w", existing.GetID(), err)
	}
	r.logger.Info("updated github webhook", "repo", req.Repo, "hook", req.RouteKey, "id", updated.GetID())
	return &Result{HookID: updated.GetID(), URL: hookURL, Updated: true}, nil
}

// find pages through the repository hooks looking for hookURL.
func (r *Registrar) find(ctx context.Context, owner, repo, hookURL string) (*github.Hook, error) {
	opts := &github.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := r.client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing webhooks: %w", err)
		}
		for _, hook := range hooks {
			if hook.Config == nil {
				continue
			}
			if u, ok := hook.Config["url"].(string); ok && u == hookURL {
				return hook, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

func upToDate(hook *github.Hook, payloadType string, events []string) bool {
	if !hook.GetActive() {
		return false
	}
	if ct, _ := hook.Config["content_type"].(string); ct != payloadType {
		return false
	}
	have := slices.Clone(hook.Events)
	want := slices.Clone(events)
	slices.Sort(have)
	slices.Sort(want)
	return slices.Equal(have, want)
}

// SplitRepo parses "owner/name".
func SplitRepo(ownerRepo string) (owner, repo string, err error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}
	return parts[0], parts[1], nil
}

// PayloadType maps a route content type to GitHub's content_type setting.
func PayloadType(contentType string) (string, error) {
	switch contentType {
	case "application/json":
		return "json", nil
	case "application/x-www-form-urlencoded":
		return "form", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
}

// HookURL is the public URL GitHub posts to for a route key.
func HookURL(scheme, routeKey string) string {
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + routeKey
}
