package controllers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/app/repository"
	"github.com/cubbyhq/cubby/internal/pkg/env"
	"github.com/cubbyhq/cubby/internal/pkg/mail"
	"github.com/cubbyhq/cubby/internal/pkg/token"
	"github.com/cubbyhq/cubby/internal/pkg/usercontext"
	"github.com/cubbyhq/cubby/internal/pkg/utils"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates an inactive account and mails the activation link.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	user, err := models.CreateUser(req.Username, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	if err := user.GenerateActivationToken(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create activation token")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(user.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "conflict", "An account with this email already exists")
	}
	if err := repo.Create(user); err != nil {
		log.Errorf("user registration failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create account")
	}

	activationURL := fmt.Sprintf("%s/api/v1/auth/activate?token=%s",
		env.GetEnv("PUBLIC_URL", "http://localhost:8080"), user.ActivationToken)
	go func() {
		body := fmt.Sprintf("<p>Welcome to Cubby!</p><p>Activate your account: <a href=\"%s\">%s</a></p>",
			activationURL, activationURL)
		if err := mail.SendMail(user.Email, "Activate your Cubby account", body); err != nil {
			log.Warnf("activation mail to %s failed: %v", user.Email, err)
		}
	}()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     user.ID,
		"email":  user.Email,
		"status": user.Status,
	})
}

// HandleAuthActivate flips an account to active given a valid token.
func HandleAuthActivate(c *fiber.Ctx) error {
	activationToken := strings.TrimSpace(c.Query("token"))
	if activationToken == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing activation token")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(activationToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown activation token")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	return c.JSON(fiber.Map{"activated": true})
}

// HandleAuthLogin verifies credentials and issues a bearer token.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(strings.TrimSpace(req.Email))
	// Uniform error for unknown email and wrong password.
	if err != nil || !models.CheckPasswordHash(req.Password, user.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid email or password")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Account is not activated")
	}

	signed, err := token.Generate(user)
	if err != nil {
		log.Errorf("token generation failed for user %d: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repo.Update(user); err != nil {
		log.Warnf("failed to record last login for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"token": signed,
		"user": fiber.Map{
			"id":       user.ID,
			"username": user.Name,
			"email":    user.Email,
			"is_admin": user.Role == models.ROLE_ADMIN,
		},
	})
}

// HandlePasswordResetRequest mails a reset token. The response is identical
// whether or not the email exists.
func HandlePasswordResetRequest(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(strings.TrimSpace(req.Email))
	if err == nil {
		if err := user.GeneratePasswordResetToken(); err == nil {
			if err := repo.Update(user); err == nil {
				resetURL := fmt.Sprintf("%s/reset-password?token=%s",
					env.GetEnv("PUBLIC_URL", "http://localhost:8080"), user.PasswordResetToken)
				go func() {
					body := fmt.Sprintf("<p>Reset your Cubby password: <a href=\"%s\">%s</a></p>", resetURL, resetURL)
					if err := mail.SendMail(user.Email, "Reset your Cubby password", body); err != nil {
						log.Warnf("reset mail to %s failed: %v", user.Email, err)
					}
				}()
			}
		}
	}

	return c.JSON(fiber.Map{"sent": true})
}

// HandlePasswordResetConfirm sets a new password given a valid reset token.
func HandlePasswordResetConfirm(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if len(req.Password) < 6 {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "Password must be at least 6 characters")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByPasswordResetToken(strings.TrimSpace(req.Token))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown or expired reset token")
	}
	if user.PasswordResetSentAt == nil || time.Since(*user.PasswordResetSentAt) > 24*time.Hour {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown or expired reset token")
	}

	hashed, err := models.HashPassword(req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Password update failed")
	}
	user.Password = hashed
	user.PasswordResetToken = ""
	user.PasswordResetSentAt = nil
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Password update failed")
	}

	return c.JSON(fiber.Map{"updated": true})
}

// HandleGetMe returns the authenticated user's profile.
func HandleGetMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	return c.JSON(fiber.Map{
		"id":            user.ID,
		"username":      user.Name,
		"email":         user.Email,
		"status":        user.Status,
		"is_admin":      user.Role == models.ROLE_ADMIN,
		"avatar_url":    utils.GetGravatarURL(user.Email, 200),
		"created_at":    user.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(user.LastLoginAt),
	})
}
