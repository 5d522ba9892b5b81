package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebAPI forwards parameters to an HTTP endpoint as a JSON body (or as
// query parameters for GET).
type WebAPI struct {
	name        string
	description string
	url         string
	method      string
	headers     map[string]string
	client      *http.Client
}

func NewWebAPI(name, description, url, method string, headers map[string]string, timeout time.Duration) *WebAPI {
	if timeout <= 0 {
		timeout = DefaultPluginTimeout
	}
	if method == "" {
		method = http.MethodPost
	}
	return &WebAPI{
		name:        name,
		description: description,
		url:         url,
		method:      strings.ToUpper(method),
		headers:     headers,
		client:      &http.Client{Timeout: timeout},
	}
}

func (w *WebAPI) Name() string        { return w.name }
func (w *WebAPI) Description() string { return w.description }

func (w *WebAPI) Execute(ctx context.Context, params map[string]any) Result {
	req, err := w.newRequest(ctx, params)
	if err != nil {
		return failure(w.name, err.Error())
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return failure(w.name, fmt.Sprintf("request to %s failed: %v", w.url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPluginOutput+1))
	if err != nil {
		return failure(w.name, fmt.Sprintf("reading response: %v", err))
	}
	text := truncate(string(body))

	if resp.StatusCode >= 300 {
		return Result{Plugin: w.name, Output: text, Error: fmt.Sprintf("%s returned %s", w.url, resp.Status)}
	}

	res := Result{Plugin: w.name, Success: true, Output: text}
	var data map[string]any
	if json.Unmarshal(body, &data) == nil {
		res.Data = data
	}
	return res
}

func (w *WebAPI) newRequest(ctx context.Context, params map[string]any) (*http.Request, error) {
	var body io.Reader
	if w.method != http.MethodGet {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.method == http.MethodGet {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		req.URL.RawQuery = q.Encode()
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
