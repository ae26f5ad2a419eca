// Package trello reads and writes Trello cards.
package trello

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kingrea/minion/internal/connectors/rest"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// ProviderType is the name used in `!provider:trello`.
const ProviderType = "trello"

// DefaultBaseURL is the public Trello API root.
const DefaultBaseURL = "https://api.trello.com/1"

// Session is the provider instance shared by every Trello function in a run.
type Session struct {
	conn   *rest.Connection
	boards *rest.Cache[map[string]any]
}

type sessionOptions struct {
	APIKey   string `mapstructure:"api_key"`
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// NewSession authenticates every request with the key and token query
// parameters Trello expects.
func NewSession(apiKey, apiToken, baseURL string) *Session {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	conn := rest.New(ProviderType, baseURL,
		rest.WithQueryParam("key", apiKey),
		rest.WithQueryParam("token", apiToken),
	)
	return &Session{conn: conn, boards: rest.NewCache[map[string]any](rest.DefaultCacheSize)}
}

// Close releases the underlying HTTP client.
func (s *Session) Close() error { return s.conn.Close() }

// Register installs the trello provider and functions.
func Register(cat *registry.Catalog) {
	cat.MustRegisterProvider(ProviderType, "Trello session (api_key, api_token, base_url).", newProvider)
	cat.MustRegisterFunction("trello.cards_assigned_to_user", "Visible cards the authenticated member belongs to (session).", cardsAssignedToUser)
	cat.MustRegisterFunction("trello.cards_for_board", "All cards of a board looked up by name (session, board).", cardsForBoard)
	cat.MustRegisterFunction("trello.create_card", "Create one card per item on board/list (session, items, board, list).", createCard)
	cat.MustRegisterFunction("trello.update_card", "Apply {card, updates} items to existing cards (session, items).", updateCard)
	cat.MustRegisterFunction("trello.delete_card", "Delete each card in items (session, items).", deleteCard)
}

func newProvider(_ context.Context, kw registry.Kwargs) (any, error) {
	var opts sessionOptions
	if err := registry.Decode(kw, &opts); err != nil {
		return nil, err
	}
	if opts.APIKey == "" || opts.APIToken == "" {
		return nil, fmt.Errorf("api_key and api_token are required")
	}
	return NewSession(opts.APIKey, opts.APIToken, opts.BaseURL), nil
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

func cardsForBoard(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "board"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	board, err := kw.String("board")
	if err != nil {
		return nil, err
	}
	return session.BoardCards(board), nil
}

func createCard(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "items", "board", "list"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	board, err := kw.String("board")
	if err != nil {
		return nil, err
	}
	list, err := kw.String("list")
	if err != nil {
		return nil, err
	}
	return rest.Each(items, func(ctx context.Context, item map[string]any) (any, error) {
		return session.CreateCard(ctx, board, list, item)
	}), nil
}

func updateCard(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "items"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	return rest.Each(items, func(ctx context.Context, item map[string]any) (any, error) {
		card, ok := item["card"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item needs a card mapping, got %T", item["card"])
		}
		updates, ok := item["updates"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item needs an updates mapping, got %T", item["updates"])
		}
		return session.UpdateCard(ctx, card, updates)
	}), nil
}

func deleteCard(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("session", "items"); err != nil {
		return nil, err
	}
	session, err := registry.Arg[*Session](kw, "session")
	if err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	return rest.Each(items, func(ctx context.Context, item map[string]any) (any, error) {
		id, err := cardID(item)
		if err != nil {
			return nil, err
		}
		if err := session.conn.Delete(ctx, "/cards/"+url.PathEscape(id), nil); err != nil {
			return nil, err
		}
		return item, nil
	}), nil
}

// AssignedCards streams the visible cards of the authenticated member.
func (s *Session) AssignedCards() pipeline.Stream {
	return rest.Deferred(func(ctx context.Context) ([]any, error) {
		var cards []any
		err := s.conn.Get(ctx, "/members/me/cards", map[string]string{"attachments": "true", "filter": "visible"}, &cards)
		return cards, err
	})
}

// BoardCards streams every card of the named board.
func (s *Session) BoardCards(board string) pipeline.Stream {
	return rest.Deferred(func(ctx context.Context) ([]any, error) {
		b, err := s.Board(ctx, board)
		if err != nil {
			return nil, err
		}
		var cards []any
		err = s.conn.Get(ctx, "/boards/"+url.PathEscape(b["id"].(string))+"/cards",
			map[string]string{"attachments": "true", "filter": "all"}, &cards)
		return cards, err
	})
}

// Board finds one of the member's boards by name, with its open lists.
// Lookups are cached for the session.
func (s *Session) Board(ctx context.Context, name string) (map[string]any, error) {
	return s.boards.Get(name, func() (map[string]any, error) {
		var boards []map[string]any
		if err := s.conn.Get(ctx, "/members/me/boards", map[string]string{"lists": "open"}, &boards); err != nil {
			return nil, err
		}
		for _, b := range boards {
			if b["name"] == name {
				if _, ok := b["id"].(string); !ok {
					return nil, fmt.Errorf("trello: board %q has no id", name)
				}
				return b, nil
			}
		}
		return nil, fmt.Errorf("trello: board %q not found", name)
	})
}

// CreateCard posts item as a new card on board/list. Labels and attachments
// listed on the item are added after the card exists.
func (s *Session) CreateCard(ctx context.Context, board, list string, item map[string]any) (map[string]any, error) {
	b, err := s.Board(ctx, board)
	if err != nil {
		return nil, err
	}
	listID, err := findList(b, list)
	if err != nil {
		return nil, err
	}
	fields, labels, attachments := split(item)
	for _, label := range labels {
		if _, err := labelBody(label); err != nil {
			return nil, err
		}
	}
	fields["idList"] = listID
	var card map[string]any
	if err := s.conn.Post(ctx, "/cards", fields, &card); err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, card, labels, attachments); err != nil {
		return nil, err
	}
	return card, nil
}

// UpdateCard applies updates to card. Fields whose value already matches
// are skipped, and nothing is sent when no field changes.
func (s *Session) UpdateCard(ctx context.Context, card, updates map[string]any) (map[string]any, error) {
	id, err := cardID(card)
	if err != nil {
		return nil, err
	}
	fields, labels, attachments := split(updates)
	for key, value := range fields {
		if same(card[key], value) {
			delete(fields, key)
		}
	}
	result := clone(card)
	if len(fields) > 0 {
		result = nil
		if err := s.conn.Put(ctx, "/cards/"+url.PathEscape(id), fields, &result); err != nil {
			return nil, err
		}
		if result == nil {
			result = map[string]any{"id": id}
		}
		for _, key := range []string{"labels", "attachments"} {
			if _, ok := result[key]; !ok && card[key] != nil {
				result[key] = card[key]
			}
		}
	}
	if err := s.decorate(ctx, result, labels, attachments); err != nil {
		return nil, err
	}
	return result, nil
}

// decorate adds the labels and attachments missing from card and appends
// what the API returns for each to card, falling back to what was sent. A label is either a name or a
// mapping with name and color.
func (s *Session) decorate(ctx context.Context, card map[string]any, labels, attachments []any) error {
	id, err := cardID(card)
	if err != nil {
		return err
	}
	have := names(card["labels"], "name")
	for _, label := range labels {
		body, err := labelBody(label)
		if err != nil {
			return err
		}
		name := fmt.Sprint(body["name"])
		if have[name] {
			continue
		}
		created := clone(body)
		if err := s.conn.Post(ctx, "/cards/"+url.PathEscape(id)+"/labels", body, &created); err != nil {
			return err
		}
		card["labels"] = appendTo(card["labels"], created)
		have[name] = true
	}
	attached := names(card["attachments"], "url")
	for _, attachment := range attachments {
		link := fmt.Sprint(attachment)
		if attached[link] {
			continue
		}
		created := map[string]any{"url": link}
		if err := s.conn.Post(ctx, "/cards/"+url.PathEscape(id)+"/attachments", map[string]any{"url": link}, &created); err != nil {
			return err
		}
		card["attachments"] = appendTo(card["attachments"], created)
		attached[link] = true
	}
	return nil
}

func labelBody(label any) (map[string]any, error) {
	switch l := label.(type) {
	case map[string]any:
		name, ok := l["name"]
		if !ok || name == nil || name == "" {
			return nil, fmt.Errorf("trello: label %v has no name", l)
		}
		body := map[string]any{"name": fmt.Sprint(name), "color": nil}
		if color, ok := l["color"]; ok {
			body["color"] = color
		}
		return body, nil
	case nil:
		return nil, fmt.Errorf("trello: empty label")
	default:
		return map[string]any{"name": fmt.Sprint(l), "color": nil}, nil
	}
}

// appendTo returns a new list holding the items of list followed by item,
// leaving list untouched.
func appendTo(list any, item map[string]any) []any {
	items, _ := list.([]any)
	out := make([]any, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item)
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// split copies item without its labels and attachments, which are
// written through their own endpoints.
func split(item map[string]any) (map[string]any, []any, []any) {
	fields := make(map[string]any, len(item))
	for key, value := range item {
		fields[key] = value
	}
	labels, _ := fields["labels"].([]any)
	attachments, _ := fields["attachments"].([]any)
	delete(fields, "labels")
	delete(fields, "attachments")
	return fields, labels, attachments
}

func findList(board map[string]any, name string) (string, error) {
	lists, _ := board["lists"].([]any)
	for _, l := range lists {
		list, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if list["name"] == name {
			if id, ok := list["id"].(string); ok {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("trello: list %q not found on board %q", name, board["name"])
}

func cardID(card map[string]any) (string, error) {
	id, ok := card["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("trello: card has no id")
	}
	return id, nil
}

// names indexes the key field of every mapping in a list.
func names(list any, key string) map[string]bool {
	out := map[string]bool{}
	items, _ := list.([]any)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if v, ok := m[key]; ok {
				out[fmt.Sprint(v)] = true
			}
		}
	}
	return out
}

// same compares values by their JSON encoding, so 1 and 1.0 match.
func same(a, b any) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(x) == string(y)
}
