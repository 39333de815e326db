package dedup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/transport"
)

const maxBodySize = 4 << 20

// Response is the settled outcome of a successful operation. It is shared
// by every coalesced caller and must be treated as read-only.
type Response struct {
	Status int
	Header http.Header
	// Body is the JSON payload, nil when the server sent none.
	Body json.RawMessage
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apierr.Wrap(apierr.KindDecode, "invalid response body", err)
	}
	return nil
}

type errorBody struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// ServerMessage extracts the "error" (when a string) or "message" field of
// a JSON error body.
func ServerMessage(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return ""
	}
	if s, ok := eb.Error.(string); ok && s != "" {
		return s
	}
	return eb.Message
}

func networkError(err error) error {
	if errors.Is(err, transport.ErrCircuitOpen) {
		return apierr.Wrap(apierr.KindNetwork, "service unavailable", err)
	}
	return apierr.Wrap(apierr.KindNetwork, "request failed", err)
}

// toResponse reads resp and classifies it.
func toResponse(resp *http.Response) (*Response, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, networkError(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apierr.New(apierr.KindAuthRequired, apierr.ErrAuthRequired.Message, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ServerMessage(body)
		if msg == "" {
			msg = apierr.ErrRequest.Message
		}
		return nil, apierr.New(apierr.KindRequest, msg, resp.StatusCode)
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return out, nil
	}
	if !json.Valid(trimmed) {
		return nil, &apierr.Error{Kind: apierr.KindDecode, Message: "invalid response body", Status: resp.StatusCode}
	}
	out.Body = json.RawMessage(trimmed)
	return out, nil
}
