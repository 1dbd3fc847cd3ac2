// Package viewer is a terminal client of a tabletop server. It signs in,
// keeps a local table in sync through the documents API and its websocket
// watch, and drives the table's pointer and viewport operations from line
// commands.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Login exchanges credentials for a session token and the account's actor.
func Login(ctx context.Context, client *http.Client, baseURL, username, password string) (string, tabletop.Actor, error) {
	body, err := json.Marshal(auth.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", tabletop.Actor{}, fmt.Errorf("encoding login: %w", err)
	}
	var res auth.LoginResponse
	if err := call(ctx, client, http.MethodPost, baseURL+"/api/v1/auth/login", "", body, &res); err != nil {
		return "", tabletop.Actor{}, fmt.Errorf("logging in as %s: %w", username, err)
	}
	return res.Token, actorOf(res.User), nil
}

// Me resolves the actor behind an existing session token.
func Me(ctx context.Context, client *http.Client, baseURL, token string) (tabletop.Actor, error) {
	var user auth.PublicUser
	if err := call(ctx, client, http.MethodGet, baseURL+"/api/v1/auth/me", token, nil, &user); err != nil {
		return tabletop.Actor{}, fmt.Errorf("resolving session: %w", err)
	}
	return actorOf(user), nil
}

// Open signs in with cfg and returns a session whose table reads and
// publishes through the server's documents API.
func Open(ctx context.Context, cfg *config.ViewerConfig, out io.Writer) (*Session, error) {
	client := http.DefaultClient
	baseURL := strings.TrimRight(cfg.ServerURL, "/")

	token := cfg.Token
	var actor tabletop.Actor
	var err error
	if token != "" {
		actor, err = Me(ctx, client, baseURL, token)
	} else {
		token, actor, err = Login(ctx, client, baseURL, cfg.Username, cfg.Password)
	}
	if err != nil {
		return nil, err
	}

	store := docstore.NewHTTPStore(docstore.HTTPStoreConfig{BaseURL: baseURL, Token: token, HTTPClient: client})
	table := tabletop.NewTable(tableConfig(cfg.Map), actor, store, nil)
	return NewSession(table, out, cfg.PollInterval), nil
}

func tableConfig(m config.MapConfig) tabletop.Config {
	return tabletop.Config{
		CampaignID: m.CampaignID,
		Viewport: tabletop.ViewportConfig{
			MinScale:        m.MinScale,
			MaxScale:        m.MaxScale,
			ZoomSensitivity: m.ZoomSensitivity,
			ZoomAroundPivot: m.ZoomAroundPivot,
		},
		TokenSize:  m.TokenSize,
		TokenColor: m.TokenColor,
	}
}

func actorOf(u auth.PublicUser) tabletop.Actor {
	return tabletop.Actor{UserID: u.ID, Name: u.Username, Role: tabletop.RoleFromString(u.Role)}
}

// call sends a JSON request and decodes the reply into out. Non-2xx replies
// come back as *docstore.StatusError.
func call(ctx context.Context, client *http.Client, method, target, token string, body []byte, out any) error {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &docstore.StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
