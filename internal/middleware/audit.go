package middleware

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

// AuditLogger middleware logs API actions to the audit log
func AuditLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip non-modifying requests
		method := c.Method()
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			return c.Next()
		}

		// Skip certain paths
		path := c.Path()
		skipPaths := []string{"/api/auth/login", "/health"}
		for _, skip := range skipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		user := GetCurrentUser(c)
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		// Capture request body for POST/PUT (to get entity name)
		var requestBody []byte
		if method == "POST" || method == "PUT" || method == "PATCH" {
			requestBody = c.Body()
		}

		// Execute the request
		err := c.Next()

		// Only log successful responses
		statusCode := c.Response().StatusCode()
		if statusCode >= 200 && statusCode < 400 && user != nil {
			logAuditEntry(user, method, path, ip, userAgent, requestBody)
		}

		return err
	}
}

var uuidRegex = regexp.MustCompile(`/([0-9a-fA-F-]{36}|\d+)(?:/|$)`)

// extractIDFromPath gets the entity identifier (uuid or numeric) from the path
func extractIDFromPath(path string) string {
	matches := uuidRegex.FindStringSubmatch(path)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// getEntityTypeFromPath maps an API path to the entity it operates on
func getEntityTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/backups"):
		return "backup"
	case strings.Contains(path, "/schedules"):
		return "schedule"
	case strings.Contains(path, "/servers"):
		return "server"
	case strings.Contains(path, "/nodes"):
		return "node"
	case strings.Contains(path, "/users"):
		return "user"
	}
	return ""
}

// getActionFromPath maps backup sub-actions to audit actions
func getActionFromPath(method, path string) models.AuditAction {
	switch {
	case strings.HasSuffix(path, "/retry"):
		return models.AuditActionRetry
	case strings.HasSuffix(path, "/restore"):
		return models.AuditActionRestore
	case strings.HasSuffix(path, "/rename"):
		return models.AuditActionRename
	case strings.HasSuffix(path, "/lock"):
		return models.AuditActionLock
	}
	switch method {
	case "POST":
		return models.AuditActionCreate
	case "PUT", "PATCH":
		return models.AuditActionUpdate
	case "DELETE":
		return models.AuditActionDelete
	}
	return ""
}

func logAuditEntry(user *models.User, method, path, ip, userAgent string, requestBody []byte) {
	if user == nil {
		return
	}

	action := getActionFromPath(method, path)
	if action == "" {
		return
	}

	entityType := getEntityTypeFromPath(path)
	if entityType == "" {
		return
	}

	entityID := extractIDFromPath(path)
	entityName := getNameFromRequestBody(requestBody)

	description := buildDescription(action, entityType, entityName)

	auditLog := models.AuditLog{
		UserID:      user.ID,
		Username:    user.Username,
		UserType:    user.UserType,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		EntityName:  entityName,
		Description: description,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	database.DB.Create(&auditLog)
}

// buildDescription creates a human-readable description for audit logs
func buildDescription(action models.AuditAction, entityType, entityName string) string {
	verbs := map[models.AuditAction]string{
		models.AuditActionCreate:  "Created",
		models.AuditActionUpdate:  "Updated",
		models.AuditActionDelete:  "Deleted",
		models.AuditActionRetry:   "Retried",
		models.AuditActionRestore: "Restored from",
		models.AuditActionRename:  "Renamed",
		models.AuditActionLock:    "Toggled lock on",
	}
	verb := verbs[action]

	if entityName != "" {
		return verb + " " + entityType + " \"" + entityName + "\""
	}
	return verb + " " + entityType
}

// getNameFromRequestBody extracts a name field from a JSON request body
func getNameFromRequestBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	// Try common name fields in order of preference
	nameFields := []string{"name", "username", "full_name", "title"}
	for _, field := range nameFields {
		if val, ok := data[field]; ok {
			if strVal, ok := val.(string); ok && strVal != "" {
				return strVal
			}
		}
	}
	return ""
}
