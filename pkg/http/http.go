// Package http registers acts.http.request, an App-catalog act that makes
// an outbound HTTP request, grounded on the teacher's graph/tool/http.go
// HTTPTool (the same GET/POST-with-headers contract, adapted from the
// tool.Tool.Call shape to a PackageHandler).
package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	acts "github.com/dshills/acts-go"
)

// Uses is the package identifier acts.http.request acts register under.
const Uses = "acts.http.request"

// Handler implements acts.PackageHandler for acts.http.request.
//
// Inputs: method ("GET"/"POST", default "GET"), url (required), headers
// (map[string]any of string values), body (string, POST only).
// Outputs: status_code, headers, body.
type Handler struct {
	client *http.Client
}

// NewHandler creates a Handler with a default http.Client (request timeout
// is expected to come from the Context's ctx, not the client).
func NewHandler() *Handler {
	return &Handler{client: &http.Client{}}
}

func (h *Handler) Uses() string { return Uses }

func (h *Handler) Call(ctx context.Context, sctx *acts.Context, inputs map[string]any) acts.ActResult {
	urlStr, _ := inputs["url"].(string)
	if urlStr == "" {
		return acts.Fail(acts.NewError(acts.ErrAction, "", "acts.http.request requires inputs.url"))
	}

	method := "GET"
	if m, ok := inputs["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return acts.Fail(acts.NewError(acts.ErrAction, "", "unsupported HTTP method: "+method))
	}

	var body io.Reader
	if bodyStr, ok := inputs["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}
	if headers, ok := inputs["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[k] = values[0]
		} else {
			respHeaders[k] = values
		}
	}

	return acts.Complete(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	})
}
