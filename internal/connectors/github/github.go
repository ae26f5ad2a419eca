// Package github exposes GitHub issues as streams.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v24/github"
	"golang.org/x/oauth2"

	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// ProviderType is the name used in `!provider:github`.
const ProviderType = "github"

const defaultPerPage = 50

// Client is the provider instance shared by every GitHub function in a run.
type Client struct {
	api *gh.Client
}

type clientOptions struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// NewClient authenticates with a personal access token. baseURL targets
// GitHub Enterprise or a test server; empty means api.github.com.
func NewClient(ctx context.Context, token, baseURL string) (*Client, error) {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	api := gh.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("github: base url: %w", err)
		}
		api.BaseURL = u
	}
	return &Client{api: api}, nil
}

// Register installs the github provider and functions.
func Register(cat *registry.Catalog) {
	cat.MustRegisterProvider(ProviderType, "GitHub API client (api_token, base_url).", newProvider)
	cat.MustRegisterFunction("github.issues_assigned_to_user", "Issues assigned to the authenticated user (client, state).", issuesAssignedToUser)
	cat.MustRegisterFunction("github.issues_for_repository", "Issues of one repository (client, owner, repo, state).", issuesForRepository)
}

func newProvider(_ context.Context, kw registry.Kwargs) (any, error) {
	var opts clientOptions
	if err := registry.Decode(kw, &opts); err != nil {
		return nil, err
	}
	if opts.APIToken == "" {
		return nil, fmt.Errorf("api_token is required")
	}
	// The token source must outlive construction, so it is not bound to ctx.
	return NewClient(context.Background(), opts.APIToken, opts.BaseURL)
}

func issuesAssignedToUser(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("client", "state"); err != nil {
		return nil, err
	}
	client, err := registry.Arg[*Client](kw, "client")
	if err != nil {
		return nil, err
	}
	state, err := registry.OptionalArg(kw, "state", "open")
	if err != nil {
		return nil, err
	}
	return client.AssignedIssues(state), nil
}

func issuesForRepository(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("client", "owner", "repo", "state"); err != nil {
		return nil, err
	}
	client, err := registry.Arg[*Client](kw, "client")
	if err != nil {
		return nil, err
	}
	owner, err := kw.String("owner")
	if err != nil {
		return nil, err
	}
	repo, err := kw.String("repo")
	if err != nil {
		return nil, err
	}
	state, err := registry.OptionalArg(kw, "state", "open")
	if err != nil {
		return nil, err
	}
	return client.RepositoryIssues(owner, repo, state), nil
}

// AssignedIssues streams the issues assigned to the authenticated user,
// fetching one page at a time.
func (c *Client) AssignedIssues(state string) pipeline.Stream {
	return c.pages(func(ctx context.Context, page int) ([]*gh.Issue, *gh.Response, error) {
		return c.api.Issues.List(ctx, true, &gh.IssueListOptions{
			Filter:      "assigned",
			State:       state,
			ListOptions: gh.ListOptions{Page: page, PerPage: defaultPerPage},
		})
	})
}

// RepositoryIssues streams the issues of owner/repo.
func (c *Client) RepositoryIssues(owner, repo, state string) pipeline.Stream {
	return c.pages(func(ctx context.Context, page int) ([]*gh.Issue, *gh.Response, error) {
		return c.api.Issues.ListByRepo(ctx, owner, repo, &gh.IssueListByRepoOptions{
			State:       state,
			ListOptions: gh.ListOptions{Page: page, PerPage: defaultPerPage},
		})
	})
}

type fetchFunc func(ctx context.Context, page int) ([]*gh.Issue, *gh.Response, error)

func (c *Client) pages(fetch fetchFunc) pipeline.Stream {
	next := 1
	return pipeline.Paginate(func(ctx context.Context, _ int) ([]any, bool, error) {
		issues, resp, err := fetch(ctx, next)
		if err != nil {
			return nil, false, fmt.Errorf("github: list issues: %w", err)
		}
		items := make([]any, 0, len(issues))
		for _, issue := range issues {
			item, err := plain(issue)
			if err != nil {
				return nil, false, err
			}
			items = append(items, item)
		}
		more := resp != nil && resp.NextPage != 0
		if more {
			next = resp.NextPage
		}
		return items, more, nil
	})
}

// plain converts an API struct to the map form used by templates and
// expressions.
func plain(v any) (map[string]any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("github: encode item: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("github: decode item: %w", err)
	}
	return out, nil
}
