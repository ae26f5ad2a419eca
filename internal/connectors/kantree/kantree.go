// Package kantree lists Kantree cards.
package kantree

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kingrea/minion/internal/connectors/rest"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// ProviderType is the name used in `!provider:kantree`.
const ProviderType = "kantree"

// DefaultBaseURL is the Kantree API root.
const DefaultBaseURL = "https://kantree.io/api/1.0"

// Session is the provider instance shared by every Kantree function.
type Session struct {
	conn *rest.Connection
}

type sessionOptions struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// NewSession authenticates with the token itself base64-encoded as the
// basic credential, which is what Kantree expects.
func NewSession(token, baseURL string) *Session {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
	return &Session{conn: rest.New(ProviderType, baseURL, rest.WithHeader("Authorization", auth))}
}

// Close releases the underlying HTTP client.
func (s *Session) Close() error { return s.conn.Close() }

// Register installs the kantree provider and functions.
func Register(cat *registry.Catalog) {
	cat.MustRegisterProvider(ProviderType, "Kantree session (api_token, base_url).", newProvider)
	cat.MustRegisterFunction("kantree.cards_assigned_to_user", "Cards assigned to the authenticated user (session).", cardsAssignedToUser)
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

func cardsAssignedToUser(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	return session.AssignedCards(), nil
}

// AssignedCards streams the result of the "@me" search.
func (s *Session) AssignedCards() pipeline.Stream {
	return rest.Deferred(func(ctx context.Context) ([]any, error) {
		var cards []any
		err := s.conn.Get(ctx, "/search", map[string]string{"filters": "@me"}, &cards)
		return cards, err
	})
}
