package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var _ Handler = new(httpAction)

// httpAction calls an arbitrary webhook. 4xx responses are permanent
// failures; 5xx and transport errors are transient and retried.
type httpAction struct {
	client *http.Client
}

func NewHttpAction(client *http.Client) *httpAction {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpAction{client: client}
}

func (a *httpAction) Name() string {
	return "http_request"
}

func (a *httpAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	url, _ := params["url"].(string)
	if len(url) == 0 {
		return nil, Permanentf("http_request: no url")
	}
	method, _ := params["method"].(string)
	if len(method) == 0 {
		method = http.MethodPost
	}
	var body io.Reader
	if payload, ok := params["body"]; ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, Permanent(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, Transient(fmt.Errorf("http_request: %s returned %d", url, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, Permanentf("http_request: %s returned %d", url, resp.StatusCode)
	}
	result := map[string]any{"status": resp.StatusCode}
	var decoded map[string]any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	}
	return result, nil
}
