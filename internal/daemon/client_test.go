package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftpanel/backend/internal/backups"
)

func TestListBackups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/servers/srv-1/backups", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer node-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(backups.Snapshot{
			Items:       []backups.Record{{UUID: "b1", Name: "nightly", IsSuccessful: true}},
			BackupCount: 7,
			Storage:     &backups.StorageUsage{UsedBytes: 1024, QuotaBytes: 4096},
			Pagination:  backups.Pagination{Page: 2, PerPage: 10, TotalPages: 3},
		})
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	snap, err := api.ListBackups(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 7, snap.BackupCount)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "nightly", snap.Items[0].Name)
	assert.Equal(t, int64(1024), snap.Storage.UsedBytes)
	assert.Equal(t, 3, snap.Pagination.TotalPages)
}

func TestCreateBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/servers/srv-1/backups", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req backups.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "weekly", req.Name)
		assert.True(t, req.IsLocked)

		json.NewEncoder(w).Encode(backups.Record{UUID: "new-uuid", Name: req.Name})
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	rec, err := api.CreateBackup(context.Background(), backups.CreateRequest{Name: "weekly", IsLocked: true})
	require.NoError(t, err)
	assert.Equal(t, "new-uuid", rec.UUID)
}

func TestRenameBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/servers/srv-1/backups/b1/rename", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "renamed", body["name"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	require.NoError(t, api.RenameBackup(context.Background(), "b1", "renamed"))
}

func TestAPIErrorCarriesDaemonMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
		json.NewEncoder(w).Encode(map[string]string{"message": "backup is locked"})
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	err := api.DeleteBackup(context.Background(), "b1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusLocked, apiErr.StatusCode)
	assert.Equal(t, "backup is locked", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "backup is locked")
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	err := api.RetryBackup(context.Background(), "b1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "daemon returned status 502", apiErr.Error())
}

func TestDownloadBackup(t *testing.T) {
	payload := []byte("archive bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/servers/srv-1/backups/b1/download", r.URL.Path)
		assert.Equal(t, "Bearer node-token", r.Header.Get("Authorization"))
		w.Write(payload)
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	body, size, err := api.DownloadBackup(context.Background(), "b1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), size)
}

func TestDownloadBackupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "no such backup"})
	}))
	defer srv.Close()

	api := NewClient(srv.URL, "node-token").Server("srv-1")
	_, _, err := api.DownloadBackup(context.Background(), "b1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no such backup", apiErr.Message)
}
