package api

import "github.com/samcharles93/mmrun/internal/runner"

// InputItem is one element of a request's inputs array. Type selects the
// populated field: "text", "tokens", "image" or "audio".
type InputItem struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Tokens []int  `json:"tokens,omitempty"`
	// ImageData is a base64 encoded png, jpeg, gif, bmp or webp file.
	ImageData string        `json:"image_data,omitempty"`
	Audio     *AudioPayload `json:"audio,omitempty"`
}

type AudioPayload struct {
	BatchSize int       `json:"batch_size"`
	Bins      int       `json:"bins"`
	Frames    int       `json:"frames"`
	Data      []float32 `json:"data"`
}

// GenerateRequest carries either a prompt or a list of inputs. With neither,
// generation continues from the token kept by the last prefill call.
type GenerateRequest struct {
	Prompt string      `json:"prompt,omitempty"`
	Inputs []InputItem `json:"inputs,omitempty"`
	Stream bool        `json:"stream,omitempty"`

	runner.ConfigOptions
}

type PrefillRequest struct {
	Prompt string      `json:"prompt,omitempty"`
	Inputs []InputItem `json:"inputs,omitempty"`
	NumBOS int         `json:"num_bos,omitempty"`
	NumEOS int         `json:"num_eos,omitempty"`
}

type Usage struct {
	PromptTokens    int64 `json:"prompt_tokens"`
	GeneratedTokens int64 `json:"generated_tokens"`
}

type GenerateResponse struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Model     string         `json:"model"`
	Status    string         `json:"status"`
	Text      string         `json:"text"`
	Position  int64          `json:"position"`
	Usage     *Usage         `json:"usage,omitempty"`
	Stats     *runner.Stats  `json:"stats,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

type PrefillResponse struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Model    string `json:"model"`
	Token    int    `json:"token"`
	Position int64  `json:"position"`
}

type StatusResponse struct {
	Model         string `json:"model"`
	Loaded        bool   `json:"loaded"`
	Busy          bool   `json:"busy"`
	Position      int64  `json:"position"`
	PendingToken  bool   `json:"pending_token"`
	MaxContextLen int64  `json:"max_context_len"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type streamEvent struct {
	Type           string            `json:"type"`
	SequenceNumber int               `json:"sequence_number"`
	Delta          string            `json:"delta,omitempty"`
	Response       *GenerateResponse `json:"response,omitempty"`
}
