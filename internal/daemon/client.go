package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/driftpanel/backend/internal/backups"
)

const defaultTimeout = 30 * time.Second

// Client talks to one node daemon's HTTP API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the daemon at baseURL, authenticating
// with the node's API token
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// APIError is a non-2xx response from the daemon, preserving its message
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("daemon returned status %d", e.StatusCode)
}

// do performs a JSON request against the daemon and decodes the response
// into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request payload: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResult struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResult)
		return &APIError{StatusCode: resp.StatusCode, Message: errResult.Message}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse daemon response: %w", err)
		}
	}
	return nil
}

// ServerAPI scopes a client to one game server. It implements backups.API.
type ServerAPI struct {
	c          *Client
	serverUUID string
}

// Server returns the API scoped to the given server uuid
func (c *Client) Server(serverUUID string) *ServerAPI {
	return &ServerAPI{c: c, serverUUID: serverUUID}
}

// ListBackups fetches one page of the server's backup listing
func (s *ServerAPI) ListBackups(ctx context.Context, page int) (*backups.Snapshot, error) {
	var snap backups.Snapshot
	path := fmt.Sprintf("/api/servers/%s/backups?page=%d", s.serverUUID, page)
	if err := s.c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CreateBackup asks the daemon to start a new backup
func (s *ServerAPI) CreateBackup(ctx context.Context, req backups.CreateRequest) (*backups.Record, error) {
	var rec backups.Record
	path := fmt.Sprintf("/api/servers/%s/backups", s.serverUUID)
	if err := s.c.do(ctx, http.MethodPost, path, req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteBackup asks the daemon to delete a backup
func (s *ServerAPI) DeleteBackup(ctx context.Context, backupUUID string) error {
	path := fmt.Sprintf("/api/servers/%s/backups/%s", s.serverUUID, backupUUID)
	return s.c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RetryBackup re-runs a failed backup
func (s *ServerAPI) RetryBackup(ctx context.Context, backupUUID string) error {
	path := fmt.Sprintf("/api/servers/%s/backups/%s/retry", s.serverUUID, backupUUID)
	return s.c.do(ctx, http.MethodPost, path, nil, nil)
}

// RestoreBackup restores the server from a backup
func (s *ServerAPI) RestoreBackup(ctx context.Context, backupUUID string) error {
	path := fmt.Sprintf("/api/servers/%s/backups/%s/restore", s.serverUUID, backupUUID)
	return s.c.do(ctx, http.MethodPost, path, nil, nil)
}

// RenameBackup changes a backup's display name
func (s *ServerAPI) RenameBackup(ctx context.Context, backupUUID, name string) error {
	path := fmt.Sprintf("/api/servers/%s/backups/%s/rename", s.serverUUID, backupUUID)
	return s.c.do(ctx, http.MethodPost, path, map[string]string{"name": name}, nil)
}

// ToggleBackupLock flips a backup's deletion protection
func (s *ServerAPI) ToggleBackupLock(ctx context.Context, backupUUID string) error {
	path := fmt.Sprintf("/api/servers/%s/backups/%s/lock", s.serverUUID, backupUUID)
	return s.c.do(ctx, http.MethodPost, path, nil, nil)
}

// DownloadBackup streams a backup archive from the daemon. The caller must
// close the returned reader.
func (s *ServerAPI) DownloadBackup(ctx context.Context, backupUUID string) (io.ReadCloser, int64, error) {
	path := fmt.Sprintf("/api/servers/%s/backups/%s/download", s.serverUUID, backupUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.c.token)

	// No client timeout here: archives can be large, ctx bounds the download
	client := &http.Client{Transport: s.c.http.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		var errResult struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &errResult)
		return nil, 0, &APIError{StatusCode: resp.StatusCode, Message: errResult.Message}
	}

	return resp.Body, resp.ContentLength, nil
}
