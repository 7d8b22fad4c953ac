// Package client provides a Go client for the edgelite HTTP API.
//
// It covers session management (Open, Invoke, Commit, Close), one-shot
// invocation and the read endpoints (Path, List, Dump). Errors returned by
// the server surface as *APIError.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Custom Errors ---

// APIError represents an error returned by the edgelite API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// --- Request/Response Structs ---

// Inc is one instruction of a program.
type Inc struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Target string `json:"target"`
}

// Record is one row of a List table; absent attributes are nil.
type Record map[string]any

type invokeRequest struct {
	Root string `json:"root"`
	IncV []Inc  `json:"inc_v"`
}

type invokeResponse struct {
	Result string `json:"result"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type pathResponse struct {
	Points []string `json:"points"`
}

type listRequest struct {
	Root       string   `json:"root"`
	Dimensions []string `json:"dimensions"`
	Attrs      []string `json:"attrs,omitempty"`
}

type listResponse struct {
	Rows []Record `json:"rows"`
}

// --- Client ---

// Client is the Go client for an edgelite server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:9091". authToken may be empty.
func New(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// jsonRequest executes a request against the API and returns the raw
// response body.
func (c *Client) jsonRequest(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) decode(method, endpoint string, payload, out any) error {
	body, err := c.jsonRequest(method, endpoint, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, endpoint, err)
	}
	return nil
}

// Invoke runs incs against root in a throwaway session that is committed
// when the program succeeds.
func (c *Client) Invoke(root string, incs []Inc) (string, error) {
	var resp invokeResponse
	err := c.decode(http.MethodPost, "/invoke", invokeRequest{Root: root, IncV: incs}, &resp)
	return resp.Result, err
}

// Path evaluates p over the committed graph. root is used when p has no
// root part.
func (c *Client) Path(root, p string) ([]string, error) {
	q := url.Values{}
	q.Set("path", p)
	if root != "" {
		q.Set("root", root)
	}
	var resp pathResponse
	if err := c.decode(http.MethodGet, "/path?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// List aggregates a table from root.
func (c *Client) List(root string, dimensions, attrs []string) ([]Record, error) {
	var resp listResponse
	req := listRequest{Root: root, Dimensions: dimensions, Attrs: attrs}
	if err := c.decode(http.MethodPost, "/list", req, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Dump returns the rendered subgraph reachable from node.
func (c *Client) Dump(node string) (string, error) {
	body, err := c.jsonRequest(http.MethodGet, "/dump/"+url.PathEscape(node), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// --- Sessions ---

// Session is a server-side staging area. Writes become visible to others
// only after Commit.
type Session struct {
	client *Client
	ID     string
}

// OpenSession starts a new session on the server.
func (c *Client) OpenSession() (*Session, error) {
	var resp sessionResponse
	if err := c.decode(http.MethodPost, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &Session{client: c, ID: resp.SessionID}, nil
}

// Invoke runs incs inside the session without committing.
func (s *Session) Invoke(root string, incs []Inc) (string, error) {
	var resp invokeResponse
	err := s.client.decode(http.MethodPost, "/sessions/"+s.ID+"/invoke", invokeRequest{Root: root, IncV: incs}, &resp)
	return resp.Result, err
}

// Commit flushes the session's staged writes.
func (s *Session) Commit() error {
	_, err := s.client.jsonRequest(http.MethodPost, "/sessions/"+s.ID+"/commit", nil)
	return err
}

// Close discards the session and any uncommitted writes.
func (s *Session) Close() error {
	_, err := s.client.jsonRequest(http.MethodDelete, "/sessions/"+s.ID, nil)
	return err
}
