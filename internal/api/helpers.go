package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
		},
	})
}

func writeSessionError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return writeError(c, status, errType, err.Error(), "")
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// toInputs converts the request body form into runner inputs. A prompt and
// an inputs array are mutually exclusive; neither yields no inputs.
func toInputs(prompt string, items []InputItem) ([]multimodal.Input, error) {
	if prompt != "" && len(items) > 0 {
		return nil, newInvalidRequest("prompt and inputs are mutually exclusive")
	}
	if prompt != "" {
		return []multimodal.Input{multimodal.Text(prompt)}, nil
	}

	inputs := make([]multimodal.Input, 0, len(items))
	for i, item := range items {
		in, err := toInput(item)
		if err != nil {
			return nil, newInvalidRequest(fmt.Sprintf("inputs[%d]: %v", i, err))
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func toInput(item InputItem) (multimodal.Input, error) {
	switch item.Type {
	case "text":
		return multimodal.Text(item.Text), nil
	case "tokens":
		if len(item.Tokens) == 0 {
			return multimodal.Input{}, fmt.Errorf("tokens must not be empty")
		}
		return multimodal.Tokens(item.Tokens), nil
	case "image":
		raw, err := base64.StdEncoding.DecodeString(item.ImageData)
		if err != nil {
			return multimodal.Input{}, fmt.Errorf("image_data: %w", err)
		}
		img, err := multimodal.ReadImage(bytes.NewReader(raw))
		if err != nil {
			return multimodal.Input{}, err
		}
		return multimodal.FromImage(img), nil
	case "audio":
		if item.Audio == nil {
			return multimodal.Input{}, fmt.Errorf("audio payload is required")
		}
		a := multimodal.Audio{
			BatchSize: item.Audio.BatchSize,
			Bins:      item.Audio.Bins,
			Frames:    item.Audio.Frames,
			Data:      item.Audio.Data,
		}
		if err := a.Validate(); err != nil {
			return multimodal.Input{}, err
		}
		return multimodal.FromAudio(a), nil
	default:
		return multimodal.Input{}, fmt.Errorf("unsupported input type %q", item.Type)
	}
}

func newGenerationID() string {
	return "gen_" + uuid.NewString()
}

func newPrefillID() string {
	return "pre_" + uuid.NewString()
}
