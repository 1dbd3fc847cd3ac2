package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/agents"
	"github.com/keyxmakerx/tabletop/internal/sanitize"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	defaultTranscriptLimit = 100
	maxPromptLength        = 4000
	greeting               = "Conexão estabelecida com C.R.I.S. Como posso auxiliar sua investigação hoje?"
)

// Message is one transcript line.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// AgentDirectory is the part of the agents service the chat tools use.
type AgentDirectory interface {
	List(ctx context.Context) ([]agents.Agent, error)
	DeleteByName(ctx context.Context, actor tabletop.Actor, name string) (*agents.Agent, error)
}

// Config tunes the assistant service.
type Config struct {
	// RatePerMinute limits backend calls across all users. Zero disables
	// the limit.
	RatePerMinute int

	// TranscriptLimit caps the messages kept per user.
	TranscriptLimit int
}

// AssistantService fronts the generative backend.
type AssistantService interface {
	// Chat records text, asks the backend and applies any tool calls. Backend
	// failures become system messages rather than errors. Returns the
	// messages added by this turn.
	Chat(ctx context.Context, actor tabletop.Actor, text string) ([]Message, error)

	Transcript(actor tabletop.Actor) []Message
	ClearTranscript(actor tabletop.Actor)

	DraftCharacter(ctx context.Context, actor tabletop.Actor) (json.RawMessage, error)
	DraftPortrait(ctx context.Context, actor tabletop.Actor, description, class string) (string, error)
	ParseDocument(ctx context.Context, actor tabletop.Actor, data []byte, mimeType string) (json.RawMessage, error)

	// SetAgents binds the directory used by chat tools. Called once while
	// wiring, since the agents service drafts through this service.
	SetAgents(dir AgentDirectory)
}

var (
	_ agents.Drafter = (AssistantService)(nil)
	_ AgentDirectory = (agents.AgentService)(nil)
)

type assistantService struct {
	client  Client
	limiter *rate.Limiter
	limit   int

	mu          sync.Mutex
	agents      AgentDirectory
	transcripts map[string][]Message
	now         func() time.Time
}

// NewAssistantService creates the service. client may be nil, in which case
// every call reports the assistant as unavailable.
func NewAssistantService(client Client, cfg Config) AssistantService {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	if cfg.TranscriptLimit <= 0 {
		cfg.TranscriptLimit = defaultTranscriptLimit
	}
	return &assistantService{
		client:      client,
		limiter:     limiter,
		limit:       cfg.TranscriptLimit,
		transcripts: make(map[string][]Message),
		now:         time.Now,
	}
}

func (s *assistantService) SetAgents(dir AgentDirectory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = dir
}

// Transcript returns the actor's conversation, starting with a greeting.
func (s *assistantService) Transcript(actor tabletop.Actor) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcriptLocked(actor.UserID)...)
}

func (s *assistantService) ClearTranscript(actor tabletop.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, actor.UserID)
}

func (s *assistantService) Chat(ctx context.Context, actor tabletop.Actor, text string) ([]Message, error) {
	if actor.Role < tabletop.RolePlayer {
		return nil, apperror.NewForbidden("you are not at this table")
	}
	text = sanitize.Text(text)
	if text == "" {
		return nil, apperror.NewValidation("message is required")
	}
	if len([]rune(text)) > maxPromptLength {
		return nil, apperror.NewValidation(fmt.Sprintf("message must be at most %d characters", maxPromptLength))
	}

	added := []Message{s.message(RoleUser, text)}
	added = append(added, s.converse(ctx, actor, text)...)

	s.mu.Lock()
	t := append(s.transcriptLocked(actor.UserID), added...)
	if len(t) > s.limit {
		t = append([]Message(nil), t[len(t)-s.limit:]...)
	}
	s.transcripts[actor.UserID] = t
	s.mu.Unlock()
	return added, nil
}

// converse runs one backend turn and returns the replies to record.
func (s *assistantService) converse(ctx context.Context, actor tabletop.Actor, text string) []Message {
	if err := s.ready(); err != nil {
		return []Message{s.message(RoleSystem, apperror.SafeMessage(err))}
	}

	dir := s.directory()
	var names []string
	if dir != nil {
		list, err := dir.List(ctx)
		if err != nil {
			slog.Warn("assistant could not list agents", slog.Any("error", err))
		}
		for _, a := range list {
			names = append(names, a.Name)
		}
	}

	reply, err := s.client.Chat(ctx, text, names)
	if err != nil {
		slog.Warn("assistant chat failed",
			slog.String("user_id", actor.UserID),
			slog.Any("error", err),
		)
		return []Message{s.message(RoleSystem, "ERRO CRÍTICO NO SISTEMA. Não foi possível processar a solicitação.")}
	}

	var out []Message
	if reply.Text != "" {
		out = append(out, s.message(RoleAssistant, sanitize.Text(reply.Text)))
	}
	for _, call := range reply.ToolCalls {
		out = append(out, s.message(RoleSystem, s.runTool(ctx, actor, dir, call)))
	}
	if len(out) == 0 {
		out = append(out, s.message(RoleAssistant, "..."))
	}
	return out
}

// runTool applies one tool call and describes the outcome.
func (s *assistantService) runTool(ctx context.Context, actor tabletop.Actor, dir AgentDirectory, call ToolCall) string {
	if call.Name != ToolDeleteAgent {
		return fmt.Sprintf("ERRO: ferramenta %q desconhecida.", call.Name)
	}
	var args struct {
		AgentName string `json:"agentName"`
	}
	if err := json.Unmarshal(call.Args, &args); err != nil || strings.TrimSpace(args.AgentName) == "" {
		return "ERRO: nome do agente ausente na solicitação."
	}
	if dir == nil {
		return "ERRO: registro de agentes indisponível."
	}

	deleted, err := dir.DeleteByName(ctx, actor, args.AgentName)
	switch {
	case err == nil:
		slog.Info("assistant deleted agent",
			slog.String("agent_id", deleted.ID),
			slog.String("by", actor.UserID),
		)
		return fmt.Sprintf("Registro do agente %q foi permanentemente expurgado do sistema.", deleted.Name)
	case apperror.Is(err, http.StatusNotFound):
		return fmt.Sprintf("ERRO: Agente %q não encontrado. Verifique a grafia.", strings.TrimSpace(args.AgentName))
	default:
		return fmt.Sprintf("ERRO: não foi possível excluir %q: %s", strings.TrimSpace(args.AgentName), apperror.SafeMessage(err))
	}
}

func (s *assistantService) DraftCharacter(ctx context.Context, actor tabletop.Actor) (json.RawMessage, error) {
	if err := s.admit(actor); err != nil {
		return nil, err
	}
	data, err := s.client.DraftCharacter(ctx)
	if err != nil {
		return nil, backendError("could not draft a character", err)
	}
	return data, nil
}

func (s *assistantService) DraftPortrait(ctx context.Context, actor tabletop.Actor, description, class string) (string, error) {
	description = sanitize.Text(description)
	if description == "" {
		return "", apperror.NewValidation("description is required")
	}
	if err := s.admit(actor); err != nil {
		return "", err
	}
	if class == "" {
		class = agents.ClassFighter
	}
	ref, err := s.client.DraftPortrait(ctx, description, sanitize.Text(class))
	if err != nil {
		return "", backendError("could not generate a portrait", err)
	}
	if sanitize.URL(ref) == "" {
		return "", backendError("could not generate a portrait", fmt.Errorf("unusable image reference"))
	}
	return ref, nil
}

func (s *assistantService) ParseDocument(ctx context.Context, actor tabletop.Actor, data []byte, mimeType string) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, apperror.NewValidation("file is empty")
	}
	if err := s.admit(actor); err != nil {
		return nil, err
	}
	fields, err := s.client.ParseDocument(ctx, data, mimeType)
	if err != nil {
		return nil, backendError("could not read the document", err)
	}
	return fields, nil
}

// admit checks the caller, the backend and the rate limit.
func (s *assistantService) admit(actor tabletop.Actor) error {
	if actor.Role < tabletop.RolePlayer {
		return apperror.NewForbidden("you are not at this table")
	}
	return s.ready()
}

func (s *assistantService) ready() error {
	if s.client == nil {
		return apperror.NewUnavailable("the assistant is not configured", nil)
	}
	if !s.limiter.Allow() {
		return apperror.NewTooManyRequests("the assistant is busy, try again in a minute")
	}
	return nil
}

func (s *assistantService) directory() AgentDirectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents
}

func (s *assistantService) transcriptLocked(userID string) []Message {
	t, ok := s.transcripts[userID]
	if !ok {
		t = []Message{s.message(RoleAssistant, greeting)}
		s.transcripts[userID] = t
	}
	return t
}

func (s *assistantService) message(role, content string) Message {
	return Message{Role: role, Content: content, At: s.now().UTC()}
}

func backendError(message string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperror.NewBadGateway(message, err)
}
