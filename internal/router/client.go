package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nvrd/internal/apperr"
)

// Client talks to the media router's control API: adding/removing ephemeral
// paths, listing active paths, and triggering a config reload. Grounded on
// the teacher's MediaMTXService HTTP client (same Basic-auth, JSON-body
// pattern), adapted to the v3 declarative-reload endpoints of spec.md §6.
type Client struct {
	baseURL    string
	httpClient *http.Client
	user       string
	pass       string
}

// NewClient builds a Client for the router's control API at host:apiPort.
func NewClient(host, apiPort, user, pass string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%s", host, apiPort),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		user:       user,
		pass:       pass,
	}
}

func (c *Client) do(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Fatal("marshal router request body", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperr.Fatal("build router request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("router unreachable", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, apperr.Transient(
			fmt.Sprintf("router API returned %d: %s", resp.StatusCode, string(respBody)),
			nil,
		)
	}
	return respBody, nil
}

// AddPath registers an ephemeral or permanent path directly via the control
// API (used by TestConnectionBroker and, in cmd/nvrd, for C8 credential
// registration; the steady-state path set is instead driven by the
// declarative config + Reload).
func (c *Client) AddPath(name string, entry PathEntry) error {
	_, err := c.do(http.MethodPost, "/v3/config/paths/add/"+name, entry)
	return err
}

// RemovePath deletes a path registered via AddPath.
func (c *Client) RemovePath(name string) error {
	_, err := c.do(http.MethodPost, "/v3/config/paths/remove/"+name, nil)
	return err
}

// Reload asks the router to re-read its configuration file from disk.
func (c *Client) Reload() error {
	_, err := c.do(http.MethodPost, "/v3/config/reload", nil)
	return err
}

// pathListResponse mirrors the subset of MediaMTX's /v3/paths/list payload
// the ingest health check in cmd/nvrd needs to judge per-path health.
type pathListResponse struct {
	Items []struct {
		Name  string `json:"name"`
		Ready bool   `json:"ready"`
	} `json:"items"`
}

// ListPaths returns the name->ready map the router currently reports.
func (c *Client) ListPaths() (map[string]bool, error) {
	body, err := c.do(http.MethodGet, "/v3/paths/list", nil)
	if err != nil {
		return nil, err
	}
	var parsed pathListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Transient("decode router paths list", err)
	}
	out := make(map[string]bool, len(parsed.Items))
	for _, it := range parsed.Items {
		out[it.Name] = it.Ready
	}
	return out, nil
}
