package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/dedup"
)

const maxBodySize = 1 << 20

// send performs one JSON call against the auth API. A non-nil token is sent
// as a bearer credential, and a 401 on such a call is reported as
// apierr.KindAuthRequired. Other non-2xx statuses become kind with the
// server's message, or fallback when it sent none.
func (m *Manager) send(ctx context.Context, method, path, token string, in, out any, kind apierr.Kind, fallback string) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apierr.Wrap(apierr.KindValidation, "encode request", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return apierr.Wrap(apierr.KindValidation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.doer.Do(req)
	if err != nil {
		return &apierr.Error{Kind: apierr.KindNetwork, Message: fallback, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &apierr.Error{Kind: apierr.KindNetwork, Message: fallback, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && token != "" {
			return apierr.New(apierr.KindAuthRequired, apierr.ErrAuthRequired.Message, resp.StatusCode)
		}
		msg := dedup.ServerMessage(raw)
		if msg == "" {
			msg = fallback
		}
		return apierr.New(kind, msg, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apierr.Error{Kind: apierr.KindDecode, Message: fallback, Status: resp.StatusCode, Err: err}
	}
	return nil
}
