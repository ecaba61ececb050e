/*
Package directory provides leave.DirectoryGateway implementations: an HTTP
client for the identity/department service and an in-memory fake for tests
and local development.

FAILURE CONTRACT:
  Every transport or decoding failure wraps leave.ErrDirectoryUnavailable
  so callers can branch with errors.Is and refuse before mutating. A 404
  is not a failure: it means "no such user" and returns (nil, nil).
*/
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/daking/leave-engine/leave"
)

// Client calls the identity/department service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a directory client. timeout bounds every lookup; a
// slow directory must never hold up a leave decision indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// userPayload mirrors the directory service's user representation.
type userPayload struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
	DepartmentID int64  `json:"departmentId"`
}

func (p userPayload) toUser() leave.User {
	return leave.User{
		ID:           p.ID,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Role:         leave.Role(p.Role),
		DepartmentID: p.DepartmentID,
	}
}

func (c *Client) User(ctx context.Context, id int64) (*leave.User, error) {
	var p userPayload
	found, err := c.getJSON(ctx, fmt.Sprintf("/api/users/%d", id), &p)
	if err != nil || !found {
		return nil, err
	}
	u := p.toUser()
	return &u, nil
}

func (c *Client) UserByEmail(ctx context.Context, email string) (*leave.User, error) {
	var p userPayload
	found, err := c.getJSON(ctx, "/api/users/by-email?email="+url.QueryEscape(email), &p)
	if err != nil || !found {
		return nil, err
	}
	u := p.toUser()
	return &u, nil
}

func (c *Client) DepartmentsManaged(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	found, err := c.getJSON(ctx, fmt.Sprintf("/api/users/%d/managed-departments", userID), &ids)
	if err != nil {
		return nil, err
	}
	if !found {
		return []int64{}, nil
	}
	return ids, nil
}

func (c *Client) UsersByRole(ctx context.Context, role leave.Role) ([]leave.User, error) {
	var payloads []userPayload
	found, err := c.getJSON(ctx, "/api/users?role="+url.QueryEscape(string(role)), &payloads)
	if err != nil {
		return nil, err
	}
	if !found {
		return []leave.User{}, nil
	}
	users := make([]leave.User, 0, len(payloads))
	for _, p := range payloads {
		users = append(users, p.toUser())
	}
	return users, nil
}

// getJSON performs a GET and decodes the body into out. Returns
// found=false on 404 without error.
func (c *Client) getJSON(ctx context.Context, path string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", leave.ErrDirectoryUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", leave.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: directory returned %d for %s", leave.ErrDirectoryUnavailable, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %v", leave.ErrDirectoryUnavailable, path, err)
	}
	return true, nil
}
