// Package assistant connects the table to a generative text and image
// backend. It drafts character sheets and portraits, reads uploaded
// documents into sheets, and keeps a per-user chat transcript in which the
// backend may ask for an agent to be deleted.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoContent is returned when the backend answered without usable output.
var ErrNoContent = errors.New("assistant returned no content")

// ToolDeleteAgent is the tool the backend calls to delete an agent by name.
const ToolDeleteAgent = "delete_agent"

// ToolCall is one tool invocation requested by the backend.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Reply is the backend's answer to a chat turn.
type Reply struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// Client is the generative backend.
type Client interface {
	// DraftCharacter returns a partial sheet as JSON.
	DraftCharacter(ctx context.Context) (json.RawMessage, error)

	// DraftPortrait returns an image reference (URL or data URL).
	DraftPortrait(ctx context.Context, description, class string) (string, error)

	// Chat answers prompt. agentNames lists the sheets the backend may refer to.
	Chat(ctx context.Context, prompt string, agentNames []string) (*Reply, error)

	// ParseDocument reads a character out of an uploaded file.
	ParseDocument(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error)
}
