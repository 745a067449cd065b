package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/driftpanel/backend/internal/backups"
	"github.com/driftpanel/backend/internal/config"
	"github.com/driftpanel/backend/internal/daemon"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
)

const downloadTokenTTL = 5 * time.Minute

type BackupHandler struct {
	cfg     *config.Config
	manager *backups.Manager
}

func NewBackupHandler(cfg *config.Config, manager *backups.Manager) *BackupHandler {
	return &BackupHandler{cfg: cfg, manager: manager}
}

// resolveServer loads the server (with its node) for the :server uuid
// parameter and checks the current user may manage it. Resolved servers are
// cached briefly since this runs on every backup request.
func (h *BackupHandler) resolveServer(c *fiber.Ctx) (*models.Server, error) {
	serverUUID := c.Params("server")
	if serverUUID == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Server uuid is required",
		})
	}

	var server models.Server
	cacheKey := database.CacheKeyServer + serverUUID
	if err := database.CacheGet(cacheKey, &server); err != nil {
		if err := database.DB.Preload("Node").Where("uuid = ?", serverUUID).First(&server).Error; err != nil {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Server not found",
			})
		}
		database.CacheSet(cacheKey, &server, database.CacheTTLServer)
	}

	user := middleware.GetCurrentUser(c)
	if user == nil || (user.UserType != models.UserTypeAdmin && server.OwnerID != user.ID) {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "You do not have access to this server",
		})
	}

	return &server, nil
}

// serverNodeAPI builds a daemon client for a server's preloaded node. The
// node row can be gone while the server row lingers, so callers must handle
// the error rather than assume the relation resolved.
func serverNodeAPI(server *models.Server) (*daemon.ServerAPI, error) {
	if server.Node == nil {
		return nil, errors.New("server has no node assigned")
	}
	return daemon.NewClient(server.Node.BaseURL(), server.Node.Token).Server(server.UUID), nil
}

// trackerFor returns the backup tracker for a server, registering it with
// the manager on first use
func (h *BackupHandler) trackerFor(server *models.Server) (*backups.Tracker, error) {
	if t, ok := h.manager.Get(server.UUID); ok {
		return t, nil
	}
	// Cached server records strip the node token, so load the node fresh
	var node models.Node
	if err := database.DB.First(&node, server.NodeID).Error; err != nil {
		return nil, err
	}
	api := daemon.NewClient(node.BaseURL(), node.Token).Server(server.UUID)
	return h.manager.Register(server.UUID, api, api), nil
}

// List returns the reconciled backup list for a server
func (h *BackupHandler) List(c *fiber.Ctx) error {
	server, err := h.resolveServer(c)
	if server == nil {
		return err
	}

	tracker, terr := h.trackerFor(server)
	if terr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to reach the server's node",
		})
	}

	list := tracker.Backups()
	if list == nil {
		list = []backups.Unified{}
	}

	var refreshError string
	if rerr := tracker.Err(); rerr != nil {
		refreshError = rerr.Error()
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"backups":      list,
			"backup_count": tracker.Count(),
			"storage":      tracker.Storage(),
		},
		"error":         refreshError,
		"is_validating": tracker.IsValidating(),
	})
}

// Refresh forces a re-fetch of the daemon listing
func (h *BackupHandler) Refresh(c *fiber.Ctx) error {
	server, err := h.resolveServer(c)
	if server == nil {
		return err
	}

	tracker, terr := h.trackerFor(server)
	if terr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to reach the server's node",
		})
	}

	if err := tracker.Refresh(c.Context()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Backup list refreshed",
	})
}

// CreateBackupRequest represents create backup request
type CreateBackupRequest struct {
	Name     string `json:"name"`
	Ignored  string `json:"ignored"`
	IsLocked bool   `json:"is_locked"`
}

// Create starts a new backup on the server's node
func (h *BackupHandler) Create(c *fiber.Ctx) error {
	server, err := h.resolveServer(c)
	if server == nil {
		return err
	}

	var req CreateBackupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	tracker, terr := h.trackerFor(server)
	if terr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to reach the server's node",
		})
	}

	// Enforce the server's backup limit against persisted backups
	if server.BackupLimit > 0 && tracker.Count() >= server.BackupLimit {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Backup limit reached for this server",
		})
	}

	rec, aerr := tracker.Create(c.Context(), backups.CreateRequest{
		Name:     req.Name,
		Ignored:  req.Ignored,
		IsLocked: req.IsLocked,
	})
	if aerr != nil {
		return daemonError(c, aerr)
	}

	// Record the manual run for the backup history view
	user := middleware.GetCurrentUser(c)
	run := models.BackupRun{
		ServerUUID: server.UUID,
		BackupUUID: rec.UUID,
		BackupName: rec.Name,
		Status:     "started",
		StartedAt:  time.Now(),
	}
	if user != nil {
		run.CreatedByID = &user.ID
		run.CreatedByName = user.Username
	}
	database.DB.Create(&run)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rec,
	})
}

// Delete removes a backup
func (h *BackupHandler) Delete(c *fiber.Ctx) error {
	return h.action(c, func(t *backups.Tracker, backupUUID string) error {
		return t.Delete(c.Context(), backupUUID)
	})
}

// Retry re-runs a failed backup
func (h *BackupHandler) Retry(c *fiber.Ctx) error {
	return h.action(c, func(t *backups.Tracker, backupUUID string) error {
		return t.Retry(c.Context(), backupUUID)
	})
}

// Restore restores the server from a backup
func (h *BackupHandler) Restore(c *fiber.Ctx) error {
	return h.action(c, func(t *backups.Tracker, backupUUID string) error {
		return t.Restore(c.Context(), backupUUID)
	})
}

// Rename changes a backup's display name
func (h *BackupHandler) Rename(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name is required",
		})
	}
	return h.action(c, func(t *backups.Tracker, backupUUID string) error {
		return t.Rename(c.Context(), backupUUID, req.Name)
	})
}

// ToggleLock flips a backup's deletion protection
func (h *BackupHandler) ToggleLock(c *fiber.Ctx) error {
	return h.action(c, func(t *backups.Tracker, backupUUID string) error {
		return t.ToggleLock(c.Context(), backupUUID)
	})
}

// action runs one backup operation against the server's tracker
func (h *BackupHandler) action(c *fiber.Ctx, fn func(t *backups.Tracker, backupUUID string) error) error {
	server, err := h.resolveServer(c)
	if server == nil {
		return err
	}

	backupUUID := c.Params("backup")
	if backupUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Backup uuid is required",
		})
	}

	tracker, terr := h.trackerFor(server)
	if terr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to reach the server's node",
		})
	}

	if aerr := fn(tracker, backupUUID); aerr != nil {
		return daemonError(c, aerr)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// daemonError translates a daemon client error into an API response,
// preserving the daemon's status code and message where available
func daemonError(c *fiber.Ctx, err error) error {
	if apiErr, ok := err.(*daemon.APIError); ok {
		return c.Status(apiErr.StatusCode).JSON(fiber.Map{
			"success": false,
			"message": apiErr.Error(),
		})
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
	})
}

// downloadClaims is the payload of a one-time backup download token
type downloadClaims struct {
	ServerUUID string `json:"server_uuid"`
	BackupUUID string `json:"backup_uuid"`
	jwt.RegisteredClaims
}

// DownloadToken issues a short-lived signed token the frontend can use to
// download a backup archive without an Authorization header
func (h *BackupHandler) DownloadToken(c *fiber.Ctx) error {
	server, err := h.resolveServer(c)
	if server == nil {
		return err
	}

	backupUUID := c.Params("backup")
	if backupUUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Backup uuid is required",
		})
	}

	claims := downloadClaims{
		ServerUUID: server.UUID,
		BackupUUID: backupUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(downloadTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "driftpanel",
		},
	}
	token, serr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if serr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to sign download token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"url":     "/api/backups/download/" + token,
	})
}

// Download streams a backup archive using a one-time token issued by
// DownloadToken. This endpoint is public; the token is the authorization.
func (h *BackupHandler) Download(c *fiber.Ctx) error {
	tokenString := c.Params("token")

	token, err := jwt.ParseWithClaims(tokenString, &downloadClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or expired download token",
		})
	}
	claims := token.Claims.(*downloadClaims)

	var server models.Server
	if err := database.DB.Preload("Node").Where("uuid = ?", claims.ServerUUID).First(&server).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	api, aerr := serverNodeAPI(&server)
	if aerr != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	body, size, derr := api.DownloadBackup(c.Context(), claims.BackupUUID)
	if derr != nil {
		return daemonError(c, derr)
	}

	c.Set("Content-Type", "application/gzip")
	c.Set("Content-Disposition", "attachment; filename="+claims.BackupUUID+".tar.gz")
	if size > 0 {
		c.Response().Header.SetContentLength(int(size))
	}
	return c.SendStream(body)
}
