// Package helpscout streams Help Scout conversations.
package helpscout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kingrea/minion/internal/connectors/rest"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// ProviderType is the name used in `!provider:helpscout`.
const ProviderType = "helpscout"

// DefaultBaseURL is the Help Scout v1 API root.
const DefaultBaseURL = "https://api.helpscout.net/v1"

// Session is the provider instance shared by every Help Scout function.
type Session struct {
	conn    *rest.Connection
	lookups *rest.Cache[map[string]any]
}

type sessionOptions struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// page is the envelope of every paged list endpoint.
type page struct {
	Items []any `json:"items"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
}

// NewSession authenticates with the API key as basic-auth user and a dummy
// password.
func NewSession(token, baseURL string) *Session {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Session{
		conn:    rest.New(ProviderType, baseURL, rest.WithBasicAuth(token, "X")),
		lookups: rest.NewCache[map[string]any](rest.DefaultCacheSize),
	}
}

// Close releases the underlying HTTP client.
func (s *Session) Close() error { return s.conn.Close() }

// Register installs the helpscout provider and functions.
func Register(cat *registry.Catalog) {
	cat.MustRegisterProvider(ProviderType, "Help Scout session (api_token, base_url).", newProvider)
	cat.MustRegisterFunction("helpscout.conversations_assigned_to_user", "Conversations in a mailbox assigned to the authenticated user (session, mailbox).", conversationsAssignedToUser)
}

func newProvider(_ context.Context, kw registry.Kwargs) (any, error) {
	var opts sessionOptions
	if err := registry.Decode(kw, &opts); err != nil {
		return nil, err
	}
	if opts.APIToken == "" {
		return nil, fmt.Errorf("api_token is required")
	}
	return NewSession(opts.APIToken, opts.BaseURL), nil
}

func conversationsAssignedToUser(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "mailbox"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	mailbox, err := kw.String("mailbox")
	if err != nil {
		return nil, err
	}
	return session.AssignedConversations(mailbox), nil
}

// User returns the authenticated user.
func (s *Session) User(ctx context.Context) (map[string]any, error) {
	return s.lookups.Get("user:me", func() (map[string]any, error) {
		var envelope struct {
			Item map[string]any `json:"item"`
		}
		if err := s.conn.Get(ctx, "/users/me.json", nil, &envelope); err != nil {
			return nil, err
		}
		if envelope.Item == nil {
			return nil, fmt.Errorf("helpscout: empty user response")
		}
		return envelope.Item, nil
	})
}

// Mailboxes streams every mailbox visible to the user.
func (s *Session) Mailboxes() pipeline.Stream {
	return s.pages("/mailboxes.json")
}

// Mailbox finds a mailbox by name.
func (s *Session) Mailbox(ctx context.Context, name string) (map[string]any, error) {
	return s.lookups.Get("mailbox:"+name, func() (map[string]any, error) {
		mailboxes := s.Mailboxes()
		for {
			item, err := mailboxes.Next(ctx)
			if errors.Is(err, pipeline.Done) {
				return nil, fmt.Errorf("helpscout: mailbox %q not found", name)
			}
			if err != nil {
				return nil, err
			}
			if m, ok := item.(map[string]any); ok && m["name"] == name {
				return m, nil
			}
		}
	})
}

// AssignedConversations streams the conversations of the named mailbox
// assigned to the authenticated user. Lookups happen on the first pull.
func (s *Session) AssignedConversations(mailbox string) pipeline.Stream {
	var inner pipeline.Stream
	return pipeline.StreamFunc(func(ctx context.Context) (any, error) {
		if inner == nil {
			box, err := s.Mailbox(ctx, mailbox)
			if err != nil {
				return nil, err
			}
			user, err := s.User(ctx)
			if err != nil {
				return nil, err
			}
			inner = s.pages(fmt.Sprintf("/mailboxes/%s/users/%s/conversations.json",
				url.PathEscape(rest.ID(box["id"])), url.PathEscape(rest.ID(user["id"]))))
		}
		return inner.Next(ctx)
	})
}

func (s *Session) pages(path string) pipeline.Stream {
	return pipeline.Paginate(func(ctx context.Context, index int) ([]any, bool, error) {
		number := index + 1
		var p page
		if err := s.conn.Get(ctx, path, map[string]string{"page": strconv.Itoa(number)}, &p); err != nil {
			return nil, false, err
		}
		return p.Items, number < p.Pages, nil
	})
}
