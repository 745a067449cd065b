package handlers

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpanel/backend/internal/config"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
)

const (
	maxLoginAttempts = 5
	loginBlockWindow = 15 * time.Minute
)

// LoginAttempt tracks failed login attempts
type LoginAttempt struct {
	Count     int
	LastTry   time.Time
	BlockedAt *time.Time
}

var (
	loginAttempts = make(map[string]*LoginAttempt)
	attemptsMutex sync.RWMutex
)

// isIPBlocked checks if IP has too many failed attempts
func isIPBlocked(ip string) (bool, int) {
	attemptsMutex.RLock()
	attempt, exists := loginAttempts[ip]
	attemptsMutex.RUnlock()

	if !exists {
		return false, 0
	}

	// Check if blocked
	if attempt.BlockedAt != nil {
		if time.Since(*attempt.BlockedAt) < loginBlockWindow {
			remaining := int(loginBlockWindow.Minutes() - time.Since(*attempt.BlockedAt).Minutes())
			return true, remaining
		}
		// Block expired, reset
		attemptsMutex.Lock()
		delete(loginAttempts, ip)
		attemptsMutex.Unlock()
		return false, 0
	}

	// Check if attempts expired (reset after 15 minutes of no attempts)
	if time.Since(attempt.LastTry) > loginBlockWindow {
		attemptsMutex.Lock()
		delete(loginAttempts, ip)
		attemptsMutex.Unlock()
		return false, 0
	}

	return attempt.Count >= maxLoginAttempts, 0
}

// recordFailedAttempt records a failed login attempt and returns attempts left
func recordFailedAttempt(ip string) int {
	attemptsMutex.Lock()
	defer attemptsMutex.Unlock()

	if _, exists := loginAttempts[ip]; !exists {
		loginAttempts[ip] = &LoginAttempt{Count: 0}
	}

	loginAttempts[ip].Count++
	loginAttempts[ip].LastTry = time.Now()

	remaining := maxLoginAttempts - loginAttempts[ip].Count
	if remaining <= 0 {
		now := time.Now()
		loginAttempts[ip].BlockedAt = &now
		return 0
	}
	return remaining
}

// clearFailedAttempts resets the counter after a successful login
func clearFailedAttempts(ip string) {
	attemptsMutex.Lock()
	delete(loginAttempts, ip)
	attemptsMutex.Unlock()
}

type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// LoginRequest represents login request body
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Success             bool      `json:"success"`
	Message             string    `json:"message,omitempty"`
	Token               string    `json:"token,omitempty"`
	User                *UserInfo `json:"user,omitempty"`
	Requires2FA         bool      `json:"requires_2fa,omitempty"`
	ForcePasswordChange bool      `json:"force_password_change,omitempty"`
}

// UserInfo represents user info in response
type UserInfo struct {
	ID                  uint            `json:"id"`
	Username            string          `json:"username"`
	Email               string          `json:"email"`
	FullName            string          `json:"full_name"`
	UserType            models.UserType `json:"user_type"`
	ForcePasswordChange bool            `json:"force_password_change"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	clientIP := c.IP()

	// Check if IP is blocked due to too many failed attempts
	if blocked, remaining := isIPBlocked(clientIP); blocked {
		return c.Status(fiber.StatusTooManyRequests).JSON(LoginResponse{
			Success: false,
			Message: "Too many failed login attempts. Please try again in " + strconv.Itoa(remaining) + " minutes",
		})
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(LoginResponse{
			Success: false,
			Message: "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(LoginResponse{
			Success: false,
			Message: "Username and password are required",
		})
	}

	// Find user
	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		remaining := recordFailedAttempt(clientIP)
		msg := "Invalid username or password"
		if remaining > 0 {
			msg += ". " + strconv.Itoa(remaining) + " attempts remaining"
		}
		return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
			Success: false,
			Message: msg,
		})
	}

	// Check if user is active
	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
			Success: false,
			Message: "Account is disabled",
		})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		remaining := recordFailedAttempt(clientIP)
		msg := "Invalid username or password"
		if remaining > 0 {
			msg += ". " + strconv.Itoa(remaining) + " attempts remaining"
		}
		return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
			Success: false,
			Message: msg,
		})
	}

	// Verify 2FA if enabled
	if user.TwoFactorEnabled {
		if req.TwoFACode == "" {
			return c.JSON(LoginResponse{
				Success:     false,
				Requires2FA: true,
				Message:     "Two-factor authentication code required",
			})
		}
		if !totp.Validate(req.TwoFACode, user.TwoFactorSecret) {
			recordFailedAttempt(clientIP)
			return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{
				Success:     false,
				Requires2FA: true,
				Message:     "Invalid two-factor authentication code",
			})
		}
	}

	clearFailedAttempts(clientIP)

	// Generate token
	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(LoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
	}

	// Update last login
	now := time.Now()
	database.DB.Model(&user).Update("last_login", now)

	return c.JSON(LoginResponse{
		Success: true,
		Token:   token,
		User: &UserInfo{
			ID:                  user.ID,
			Username:            user.Username,
			Email:               user.Email,
			FullName:            user.FullName,
			UserType:            user.UserType,
			ForcePasswordChange: user.ForcePasswordChange,
		},
		ForcePasswordChange: user.ForcePasswordChange,
	})
}

// Logout revokes the current token
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	const prefix = "Bearer "
	if len(authHeader) > len(prefix) {
		tokenString := authHeader[len(prefix):]

		// Blacklist until the token's natural expiry
		ttl := time.Duration(h.cfg.JWTExpireHours) * time.Hour
		if token, _, err := jwt.NewParser().ParseUnverified(tokenString, &middleware.JWTClaims{}); err == nil {
			if claims, ok := token.Claims.(*middleware.JWTClaims); ok && claims.ExpiresAt != nil {
				ttl = time.Until(claims.ExpiresAt.Time)
			}
		}
		database.BlacklistToken(tokenString, ttl)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

// ChangePassword updates the current user's password
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.NewPassword) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "New password must be at least 8 characters",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Current password is incorrect",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to hash password",
		})
	}

	database.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"password":              string(hash),
		"force_password_change": false,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password changed",
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": UserInfo{
			ID:                  user.ID,
			Username:            user.Username,
			Email:               user.Email,
			FullName:            user.FullName,
			UserType:            user.UserType,
			ForcePasswordChange: user.ForcePasswordChange,
		},
	})
}
