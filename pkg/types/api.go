package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	// Role of the author (system, user, assistant, tool).
	// example: user
	Role string `json:"role" example:"user"`
	// Message content. Plain string or an array of content parts.
	Content json.RawMessage `json:"content,omitempty" swaggertype:"string" example:"Write a haiku about the ocean."`
	// Optional participant name.
	Name string `json:"name,omitempty"`
	// Tool calls emitted by the assistant (opaque).
	ToolCalls json.RawMessage `json:"tool_calls,omitempty" swaggertype:"object"`
	// Id of the tool call this message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Text returns the message content when it is a plain string. For content
// part arrays the text parts are concatenated.
func (m ChatMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// StopSequences is the OpenAI "stop" field: a single string or a list of
// strings. Both forms decode to a list.
type StopSequences []string

// UnmarshalJSON accepts null, a string or an array of strings.
func (s *StopSequences) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StopSequences{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("stop must be a string or an array of strings")
	}
	*s = many
	return nil
}

// ChatCompletionRequest is the payload of POST /v1/chat/completions.
// Only the fields the gateway validates are typed; the full body is kept in Raw
// and forwarded untouched to proxying backends.
type ChatCompletionRequest struct {
	// example: m1
	Model    string        `json:"model" example:"m1"`
	Messages []ChatMessage `json:"messages"`
	// If true, the response is streamed as server-sent events.
	Stream bool `json:"stream,omitempty" example:"false"`
	// example: 128
	MaxTokens   int           `json:"max_tokens,omitempty" example:"128"`
	Temperature *float64      `json:"temperature,omitempty" example:"0.7"`
	TopP        *float64      `json:"top_p,omitempty" example:"0.9"`
	N           int           `json:"n,omitempty" example:"1"`
	Stop        StopSequences `json:"stop,omitempty" swaggertype:"array,string"`
	Seed        *int64        `json:"seed,omitempty"`
	// Tool definitions and selection (opaque).
	Tools      json.RawMessage `json:"tools,omitempty" swaggertype:"object"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty" swaggertype:"object"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages is required")
	}
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return errors.New("message role is required")
		}
	}
	if r.MaxTokens < 0 {
		return errors.New("max_tokens must be >= 0")
	}
	return nil
}

// CompletionRequest is the payload of POST /v1/completions.
type CompletionRequest struct {
	// example: m1
	Model string `json:"model" example:"m1"`
	// Prompt as a string, an array of strings or token ids.
	Prompt json.RawMessage `json:"prompt" swaggertype:"string" example:"Once upon a time"`
	Stream bool            `json:"stream,omitempty" example:"false"`
	// example: 16
	MaxTokens   int           `json:"max_tokens,omitempty" example:"16"`
	Temperature *float64      `json:"temperature,omitempty" example:"0.7"`
	TopP        *float64      `json:"top_p,omitempty" example:"0.9"`
	N           int           `json:"n,omitempty" example:"1"`
	Stop        StopSequences `json:"stop,omitempty" swaggertype:"array,string"`
	Seed        *int64        `json:"seed,omitempty"`
	Echo        bool          `json:"echo,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *CompletionRequest) Validate() error {
	if len(r.Prompt) == 0 || string(r.Prompt) == "null" {
		return errors.New("prompt is required")
	}
	if r.MaxTokens < 0 {
		return errors.New("max_tokens must be >= 0")
	}
	return nil
}

// PromptText returns the prompt as text. Arrays of strings are joined; token
// id prompts return ok=false.
func (r *CompletionRequest) PromptText() (string, bool) {
	var s string
	if err := json.Unmarshal(r.Prompt, &s); err == nil {
		return s, true
	}
	var list []string
	if err := json.Unmarshal(r.Prompt, &list); err == nil {
		return strings.Join(list, ""), true
	}
	return "", false
}

// TokenizeCompletionRequest is the payload of POST /tokenize_completion.
type TokenizeCompletionRequest struct {
	Model            string `json:"model,omitempty" example:"m1"`
	Prompt           string `json:"prompt" example:"Hello world"`
	AddSpecialTokens *bool  `json:"add_special_tokens,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *TokenizeCompletionRequest) Validate() error {
	if r.Prompt == "" {
		return errors.New("prompt is required")
	}
	return nil
}

// TokenizeChatRequest is the payload of POST /tokenize_chat.
type TokenizeChatRequest struct {
	Model               string        `json:"model,omitempty" example:"m1"`
	Messages            []ChatMessage `json:"messages"`
	AddGenerationPrompt *bool         `json:"add_generation_prompt,omitempty"`
	AddSpecialTokens    *bool         `json:"add_special_tokens,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *TokenizeChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages is required")
	}
	return nil
}

// DetokenizeRequest is the payload of POST /detokenize.
type DetokenizeRequest struct {
	Model  string `json:"model,omitempty" example:"m1"`
	Tokens []int  `json:"tokens" example:"72,105"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *DetokenizeRequest) Validate() error {
	if r.Tokens == nil {
		return errors.New("tokens is required")
	}
	return nil
}

// EmbeddingRequest is the payload of POST /v1/embeddings.
type EmbeddingRequest struct {
	Model string `json:"model" example:"m1"`
	// Input as a string or an array of strings.
	Input          json.RawMessage `json:"input" swaggertype:"string" example:"The food was delicious"`
	EncodingFormat string          `json:"encoding_format,omitempty" example:"float"`
	Dimensions     int             `json:"dimensions,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Validate performs the minimal structural checks done before dispatch.
func (r *EmbeddingRequest) Validate() error {
	if len(r.Input) == 0 || string(r.Input) == "null" {
		return errors.New("input is required")
	}
	if r.EncodingFormat != "" && r.EncodingFormat != "float" && r.EncodingFormat != "base64" {
		return errors.New("encoding_format must be float or base64")
	}
	return nil
}

// Inputs returns the embedding inputs as a list of strings.
func (r *EmbeddingRequest) Inputs() ([]string, error) {
	var s string
	if err := json.Unmarshal(r.Input, &s); err == nil {
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(r.Input, &list); err != nil {
		return nil, errors.New("input must be a string or an array of strings")
	}
	return list, nil
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionChoice is one choice of a text completion.
type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// CompletionResponse is returned by POST /v1/completions.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// ChatChoice is one choice of a chat completion. Delta is set on stream chunks.
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// ChatCompletionResponse is returned by POST /v1/chat/completions.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// TokenizeResponse is returned by the tokenize endpoints.
type TokenizeResponse struct {
	Count       int   `json:"count" example:"2"`
	MaxModelLen int   `json:"max_model_len" example:"4096"`
	Tokens      []int `json:"tokens" example:"72,105"`
}

// DetokenizeResponse is returned by POST /detokenize.
type DetokenizeResponse struct {
	Prompt string `json:"prompt" example:"Hi"`
}

// EmbeddingData is one embedding vector.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingResponse is returned by POST /v1/embeddings.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Model  string          `json:"model"`
	Data   []EmbeddingData `json:"data"`
	Usage  Usage           `json:"usage"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: backend not ready (state=starting)
	Error string `json:"error" example:"backend not ready (state=starting)"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state (uninitialized, starting, ready, shutting_down, stopped).
	// example: ready
	State string `json:"state" example:"ready"`
	// Backend kind serving requests.
	// example: vllm
	Backend string `json:"backend,omitempty" example:"vllm"`
	// Served model name.
	// example: m1
	Model string `json:"model,omitempty" example:"m1"`
	// Requests currently admitted to the backend.
	// example: 1
	Inflight int64 `json:"inflight" example:"1"`
	// Maximum admitted requests (0 = unlimited).
	// example: 0
	MaxInflight int `json:"max_inflight" example:"0"`
	// Time the backend started loading (unix seconds).
	StartedAtUnix int64 `json:"started_at_unix,omitempty" example:"1700000000"`
	// Time the backend became ready (unix seconds).
	ReadyAtUnix int64 `json:"ready_at_unix,omitempty" example:"1700000042"`
	// Uptime of the gateway process in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Last lifecycle error, if any.
	LastError string `json:"last_error,omitempty"`
}
