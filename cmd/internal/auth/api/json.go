package authapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func encodeJSON(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return &buf, nil
}

// decodeJSON reads one JSON value from body, capped at maxBytes.
func decodeJSON(body io.Reader, maxBytes int64, dst any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response body")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human-readable reason from an error response.
// It falls back to the status text when the body carries none.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := detailMessage(eb.Detail); msg != "" {
			return msg
		}
		if s := strings.TrimSpace(eb.Message); s != "" {
			return s
		}
		if eb.Error != nil {
			if s := strings.TrimSpace(eb.Error.Message); s != "" {
				return s
			}
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []validationDetail
	if err := json.Unmarshal(raw, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, d := range list {
			if m := strings.TrimSpace(d.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
