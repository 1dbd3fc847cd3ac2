package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPStoreConfig configures a client of the server's documents API.
type HTTPStoreConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Token is the session token sent as a bearer credential.
	Token string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// HTTPStore is a Store and Subscriber that talks to a remote tabletop server
// over its JSON API and websocket watch endpoint. Viewers running outside
// the server process use it as their document store.
type HTTPStore struct {
	cfg HTTPStoreConfig
}

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("documents api status %d: %s", e.StatusCode, e.Body)
}

// NewHTTPStore creates an API client. Nil HTTP client and dialer fall back to
// the package defaults.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPStore{cfg: cfg}
}

func (s *HTTPStore) documentURL(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return s.cfg.BaseURL + "/api/v1/documents/" + strings.Join(escaped, "/")
}

// Get fetches one document.
func (s *HTTPStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ValidateKey(collection, id); err != nil {
		return nil, err
	}
	var doc Document
	if err := s.do(ctx, http.MethodGet, s.documentURL(collection, id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List fetches every document of collection.
func (s *HTTPStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	var docs []Document
	if err := s.do(ctx, http.MethodGet, s.documentURL(collection), nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Upsert sends data as the document body.
func (s *HTTPStore) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if err := validatePayload(data); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPut, s.documentURL(collection, id), data, nil)
}

// Delete removes a document.
func (s *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	return s.do(ctx, http.MethodDelete, s.documentURL(collection, id), nil, nil)
}

func (s *HTTPStore) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.authorize(req.Header)

	res, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (s *HTTPStore) authorize(h http.Header) {
	if s.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+s.cfg.Token)
	}
}

// Subscribe opens the watch websocket for id. The channel closes when the
// connection drops; callers re-subscribe.
func (s *HTTPStore) Subscribe(ctx context.Context, id string) (<-chan Change, func(), error) {
	wsURL, err := s.watchURL(id)
	if err != nil {
		return nil, nil, err
	}
	header := http.Header{}
	s.authorize(header)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, nil, &StatusError{StatusCode: resp.StatusCode, Body: "watch refused"}
		}
		return nil, nil, fmt.Errorf("dialing watch for %s: %w", id, err)
	}

	out := make(chan Change, subscriptionBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer cancel()
		for {
			var change Change
			if err := conn.ReadJSON(&change); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
					slog.Debug("watch connection ended", slog.String("id", id), slog.Any("error", err))
				}
				return
			}
			select {
			case out <- change:
			default:
			}
		}
	}()

	return out, cancel, nil
}

func (s *HTTPStore) watchURL(id string) (string, error) {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String() + "/api/v1/watch/" + url.PathEscape(id), nil
}

var (
	_ Store      = (*HTTPStore)(nil)
	_ Subscriber = (*HTTPStore)(nil)
)
