package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/automat-dev/automat/internal/expressions"
	"github.com/automat-dev/automat/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

func (d *Dispatcher) dispatchHTTP(ctx context.Context, action schema.Action, runCtx map[string]any) (any, error) {
	rawURL := expressions.SubstituteString(action.URL, runCtx)
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http_request action requires a url")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http_request: invalid url %q", rawURL)
	}

	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	var contentType string
	if action.Body != nil {
		resolved := expressions.Substitute(action.Body, runCtx)
		if s, ok := resolved.(string); ok {
			bodyReader = strings.NewReader(s)
			contentType = "text/plain"
		} else {
			b, err := json.Marshal(resolved)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to marshal body").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range action.Headers {
		req.Header.Set(k, expressions.SubstituteString(v, runCtx))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_request: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	switch {
	case len(bodyBytes) == 0:
		parsedBody = nil
	case strings.Contains(respContentType, "application/json"):
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	default:
		parsedBody = string(bodyBytes)
	}

	d.logger.Debug("http request done",
		"url", rawURL,
		"status_code", resp.StatusCode,
		"content_type", respContentType,
		"duration_ms", time.Since(start).Milliseconds())

	// The parsed body is the action's result so a later {{lastResult}}
	// reference sees the response payload, not transport metadata.
	return parsedBody, nil
}
