package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prompts are passed to the backend as-is.
const (
	chatSystemPrompt = "Você é C.R.I.S., uma IA tática da Ordem Paranormal. " +
		"Se o usuário pedir para excluir, apagar ou deletar um agente, use a ferramenta delete_agent. " +
		"Se o nome for ambíguo, peça confirmação. Mantenha o tom sombrio, técnico e direto."

	draftPrompt = `Crie um personagem jogador completo para o RPG Ordem Paranormal com NEX entre 5% e 50%.
Retorne APENAS um objeto JSON com os campos: nome, origem, classe ("Combatente" | "Especialista" | "Ocultista"),
trilha, nex, patente, atributos {agi, for, int, pre, vig}, status {pvAtual, pvMax, sanAtual, sanMax, peAtual, peMax},
inventario e detalhes.`

	parsePrompt = `Extraia a ficha de personagem do documento anexado.
Retorne APENAS um objeto JSON com os campos que encontrar entre: nome, origem, classe, trilha, nex, patente,
atributos {agi, for, int, pre, vig}, status {pvAtual, pvMax, sanAtual, sanMax, peAtual, peMax}, inventario, detalhes.`

	portraitPrompt = "A highly detailed, cinematic character portrait of a %s from a modern dark fantasy horror RPG. " +
		"Dark atmosphere, dramatic lighting, gritty texture. Character description: %s. " +
		"The character is facing the camera, serious expression."
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// HTTPClientConfig configures an OpenAI-compatible backend.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient talks to an OpenAI-compatible chat completions and image
// generation API.
type HTTPClient struct {
	cfg HTTPClientConfig
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a backend client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	Tools          []any          `json:"tools,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

var deleteAgentTool = map[string]any{
	"type": "function",
	"function": map[string]any{
		"name":        ToolDeleteAgent,
		"description": "Exclui permanentemente a ficha de um agente do banco de dados do sistema.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentName": map[string]any{
					"type":        "string",
					"description": "O nome exato do agente a ser excluído.",
				},
			},
			"required": []string{"agentName"},
		},
	},
}

var jsonObject = map[string]any{"type": "json_object"}

// DraftCharacter asks for a random sheet.
func (c *HTTPClient) DraftCharacter(ctx context.Context) (json.RawMessage, error) {
	res, err := c.complete(ctx, chatRequest{
		Messages:       []chatMessage{{Role: "user", Content: draftPrompt}},
		Temperature:    0.9,
		ResponseFormat: jsonObject,
	})
	if err != nil {
		return nil, err
	}
	return jsonContent(res)
}

// Chat sends one turn with the delete tool available.
func (c *HTTPClient) Chat(ctx context.Context, prompt string, agentNames []string) (*Reply, error) {
	known := "Nenhum"
	if len(agentNames) > 0 {
		known = strings.Join(agentNames, ", ")
	}
	res, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: chatSystemPrompt + "\nAgentes registrados: [" + known + "]."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		Tools:       []any{deleteAgentTool},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, ErrNoContent
	}
	msg := res.Choices[0].Message
	reply := &Reply{Text: strings.TrimSpace(msg.Content)}
	for _, call := range msg.ToolCalls {
		args := json.RawMessage(call.Function.Arguments)
		if !json.Valid(args) {
			return nil, fmt.Errorf("tool %s: malformed arguments", call.Function.Name)
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{Name: call.Function.Name, Args: args})
	}
	if reply.Text == "" && len(reply.ToolCalls) == 0 {
		return nil, ErrNoContent
	}
	return reply, nil
}

// ParseDocument sends the file inline. Text is embedded in the prompt,
// images as image parts and anything else as a file part.
func (c *HTTPClient) ParseDocument(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error) {
	parts := []contentPart{{Type: "text", Text: parsePrompt}}
	encoded := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		parts = append(parts, contentPart{Type: "text", Text: string(data)})
	case strings.HasPrefix(mimeType, "image/"):
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: encoded}})
	default:
		parts = append(parts, contentPart{Type: "file", File: &filePart{Filename: "ficha", FileData: encoded}})
	}

	res, err := c.complete(ctx, chatRequest{
		Messages:       []chatMessage{{Role: "user", Content: parts}},
		ResponseFormat: jsonObject,
	})
	if err != nil {
		return nil, err
	}
	return jsonContent(res)
}

// DraftPortrait generates one square image and returns it as a data URL.
func (c *HTTPClient) DraftPortrait(ctx context.Context, description, class string) (string, error) {
	body := map[string]any{
		"model":  c.cfg.ImageModel,
		"prompt": fmt.Sprintf(portraitPrompt, class, description),
		"n":      1,
		"size":   "1024x1024",
	}
	var res struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/images/generations", body, &res); err != nil {
		return "", err
	}
	if len(res.Data) == 0 {
		return "", ErrNoContent
	}
	if b64 := strings.TrimSpace(res.Data[0].B64JSON); b64 != "" {
		return "data:image/png;base64," + b64, nil
	}
	if u := strings.TrimSpace(res.Data[0].URL); u != "" {
		return u, nil
	}
	return "", ErrNoContent
}

func (c *HTTPClient) complete(ctx context.Context, req chatRequest) (*chatResponse, error) {
	req.Model = c.cfg.Model
	var res chatResponse
	if err := c.post(ctx, "/chat/completions", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("assistant base url is required")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return fmt.Errorf("request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// jsonContent returns the first choice's content, which must be a JSON
// object. Code fences around it are tolerated.
func jsonContent(res *chatResponse) (json.RawMessage, error) {
	if len(res.Choices) == 0 {
		return nil, ErrNoContent
	}
	text := strings.TrimSpace(res.Choices[0].Message.Content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil, ErrNoContent
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return json.RawMessage(text), nil
}
