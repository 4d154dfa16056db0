package userdir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m4xw311/dialagent/errors"
)

// Client talks to a remote user service and satisfies Directory.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL
// (e.g. "http://localhost:8041").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doJSON executes a request, maps error statuses and decodes the response
// body into target when target is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "marshal request body")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrapf(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "%s", apiMessage(respBody))
	case resp.StatusCode == http.StatusBadRequest:
		return errors.Wrapf(ErrInvalidUser, "%s", apiMessage(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return errors.Wrapf(err, "decode response body")
		}
	}
	return nil
}

func apiMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) Add(ctx context.Context, in UserCreate) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodPost, "/v1/users", in, &u)
	return u, err
}

func (c *Client) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/users/%d", id), nil, &u)
	return u, err
}

func (c *Client) Search(ctx context.Context, q SearchQuery) ([]User, error) {
	params := url.Values{}
	for k, v := range map[string]string{"name": q.Name, "surname": q.Surname, "email": q.Email, "gender": q.Gender} {
		if v != "" {
			params.Set(k, v)
		}
	}
	path := "/v1/users"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var users []User
	err := c.doJSON(ctx, http.MethodGet, path, nil, &users)
	return users, err
}

func (c *Client) Update(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/v1/users/%d", id), upd, &u)
	return u, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/v1/users/%d", id), nil, nil)
}
