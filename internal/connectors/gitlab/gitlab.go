// Package gitlab exposes GitLab issues as streams.
package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/minion/internal/connectors/rest"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// ProviderType is the name used in `!provider:gitlab`.
const ProviderType = "gitlab"

const perPage = 50

// Session is the provider instance shared by every GitLab function in a run.
type Session struct {
	conn     *rest.Connection
	projects *rest.Cache[map[string]any]
}

type sessionOptions struct {
	URL       string        `mapstructure:"url"`
	APIToken  string        `mapstructure:"api_token"`
	VerifySSL *bool         `mapstructure:"verify_ssl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// NewSession connects to the v4 API of the instance at baseURL. extra is
// applied after the authentication options.
func NewSession(baseURL, token string, verifySSL bool, extra ...rest.Option) *Session {
	opts := []rest.Option{rest.WithBearerToken(token)}
	if !verifySSL {
		opts = append(opts, rest.WithInsecureTLS())
	}
	opts = append(opts, extra...)
	conn := rest.New(ProviderType, strings.TrimRight(baseURL, "/")+"/api/v4", opts...)
	return &Session{conn: conn, projects: rest.NewCache[map[string]any](rest.DefaultCacheSize)}
}

// Close releases the underlying HTTP client.
func (s *Session) Close() error { return s.conn.Close() }

// Register installs the gitlab provider and functions.
func Register(cat *registry.Catalog) {
	cat.MustRegisterProvider(ProviderType, "GitLab session (url, api_token, verify_ssl, timeout).", newProvider)
	cat.MustRegisterFunction("gitlab.issues_assigned_to_user", "Open issues assigned to the authenticated user (session).", issuesAssignedToUser)
	cat.MustRegisterFunction("gitlab.issues_for_project", "Open issues of a project given as group/name (session, project).", issuesForProject)
}

func newProvider(_ context.Context, kw registry.Kwargs) (any, error) {
	var opts sessionOptions
	if err := registry.Decode(kw, &opts); err != nil {
		return nil, err
	}
	if opts.URL == "" || opts.APIToken == "" {
		return nil, fmt.Errorf("url and api_token are required")
	}
	verify := true
	if opts.VerifySSL != nil {
		verify = *opts.VerifySSL
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}
	var extra []rest.Option
	if opts.Timeout > 0 {
		extra = append(extra, rest.WithTimeout(opts.Timeout))
	}
	return NewSession(opts.URL, opts.APIToken, verify, extra...), nil
}

func issuesAssignedToUser(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	return session.AssignedIssues(), nil
}

func issuesForProject(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "project"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	project, err := kw.String("project")
	if err != nil {
		return nil, err
	}
	return session.ProjectIssues(project), nil
}

// AssignedIssues streams open issues assigned to the token's user.
func (s *Session) AssignedIssues() pipeline.Stream {
	return s.pages("/issues", map[string]string{"scope": "assigned_to_me", "state": "opened"})
}

// ProjectIssues streams the open issues of project, a path such as
// "group/name".
func (s *Session) ProjectIssues(project string) pipeline.Stream {
	var inner pipeline.Stream
	return pipeline.StreamFunc(func(ctx context.Context) (any, error) {
		if inner == nil {
			p, err := s.Project(ctx, project)
			if err != nil {
				return nil, err
			}
			id := rest.ID(p["id"])
			inner = s.pages("/projects/"+url.PathEscape(id)+"/issues", map[string]string{"state": "opened"})
		}
		return inner.Next(ctx)
	})
}

// Project looks a project up by its full path. Results are cached for the
// session.
func (s *Session) Project(ctx context.Context, path string) (map[string]any, error) {
	return s.projects.Get(path, func() (map[string]any, error) {
		var project map[string]any
		if err := s.conn.Get(ctx, "/projects/"+url.PathEscape(path), nil, &project); err != nil {
			return nil, fmt.Errorf("gitlab: project %q: %w", path, err)
		}
		if _, ok := project["id"]; !ok {
			return nil, fmt.Errorf("gitlab: project %q has no id", path)
		}
		return project, nil
	})
}

// pages walks a paginated list endpoint. A short page ends the walk.
func (s *Session) pages(path string, query map[string]string) pipeline.Stream {
	return pipeline.Paginate(func(ctx context.Context, page int) ([]any, bool, error) {
		q := map[string]string{"page": strconv.Itoa(page + 1), "per_page": strconv.Itoa(perPage)}
		for k, v := range query {
			q[k] = v
		}
		var items []any
		if err := s.conn.Get(ctx, path, q, &items); err != nil {
			return nil, false, err
		}
		return items, len(items) == perPage, nil
	})
}
