package api

// GenerateRequest is the body of POST /v1/generate. Omitted fields take the
// server defaults.
type GenerateRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	Chat        *bool    `json:"chat,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *uint64  `json:"seed,omitempty"`
	Stream      *bool    `json:"stream,omitempty"`
}

type GenerateResponse struct {
	ID              string  `json:"id"`
	Object          string  `json:"object"`
	Created         int64   `json:"created"`
	Model           string  `json:"model"`
	Text            string  `json:"text"`
	StopReason      string  `json:"stop_reason"`
	Usage           Usage   `json:"usage"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateChunk is one server-sent event of a streamed generation.
type GenerateChunk struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Text     string            `json:"text,omitempty"`
	Response *GenerateResponse `json:"response,omitempty"`
	Error    *APIError         `json:"error,omitempty"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Name    string `json:"name"`
	OwnedBy string `json:"owned_by"`
	Cached  bool   `json:"cached"`
	Loaded  bool   `json:"loaded"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
