package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/cubbyhq/cubby/app/models"
	"github.com/cubbyhq/cubby/app/repository"
	"github.com/cubbyhq/cubby/internal/pkg/entitlements"
	"github.com/cubbyhq/cubby/internal/pkg/objectstore"
	"github.com/cubbyhq/cubby/internal/pkg/security"
	"github.com/cubbyhq/cubby/internal/pkg/usercontext"
)

type storageAccountRequest struct {
	Label          string `json:"label" validate:"required,min=1,max=100"`
	EndpointURL    string `json:"endpoint_url" validate:"omitempty,url"`
	Region         string `json:"region"`
	Bucket         string `json:"bucket"`
	AccessKeyID    string `json:"access_key_id" validate:"required"`
	SecretKey      string `json:"secret_key" validate:"required"`
	ForcePathStyle *bool  `json:"force_path_style"`
}

var storageAccountValidator = validator.New()

// HandleListStorageAccounts returns the user's saved credential profiles.
func HandleListStorageAccounts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()
	accounts, err := repo.GetByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load storage accounts")
	}

	return c.JSON(fiber.Map{"storage_accounts": accounts})
}

// HandleCreateStorageAccount saves a new credential profile. The secret key
// is encrypted at rest and never returned. Free-tier users are limited to a
// single profile.
func HandleCreateStorageAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req storageAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := storageAccountValidator.Struct(req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()

	count, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load storage accounts")
	}
	ent, err := billingService().Entitlement(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load billing state")
	}
	if !entitlements.CanAddStorageAccount(ent.Tier, int(count)) {
		return jsonError(c, fiber.StatusForbidden, "plan_limit_reached", "Your plan does not allow more storage accounts")
	}

	if _, err := repo.GetByUserIDAndLabel(userCtx.UserID, req.Label); err == nil {
		return jsonError(c, fiber.StatusConflict, "conflict", "A storage account with this label already exists")
	}

	secretEnc, err := security.EncryptString(req.SecretKey)
	if err != nil {
		log.Errorf("secret encryption failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store credentials")
	}

	account := &models.StorageAccount{
		UserID:       userCtx.UserID,
		Label:        req.Label,
		EndpointURL:  strings.TrimSpace(req.EndpointURL),
		Region:       req.Region,
		Bucket:       req.Bucket,
		AccessKeyID:  req.AccessKeyID,
		SecretKeyEnc: secretEnc,
		// The first profile becomes the selected one automatically.
		IsCurrent: count == 0,
	}
	if account.Region == "" {
		account.Region = "auto"
	}
	if req.ForcePathStyle != nil {
		account.ForcePathStyle = *req.ForcePathStyle
	} else {
		account.ForcePathStyle = account.EndpointURL != ""
	}

	if err := repo.Create(account); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to save storage account")
	}

	return c.Status(fiber.StatusCreated).JSON(account)
}

// HandleGetStorageAccount returns a single profile owned by the user.
func HandleGetStorageAccount(c *fiber.Ctx) error {
	account, ok := loadOwnedStorageAccount(c)
	if !ok {
		return nil
	}
	return c.JSON(account)
}

// HandleUpdateStorageAccount modifies a profile. A new secret key replaces
// the stored one; an empty secret keeps it.
func HandleUpdateStorageAccount(c *fiber.Ctx) error {
	account, ok := loadOwnedStorageAccount(c)
	if !ok {
		return nil
	}

	var req storageAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()

	if req.Label != "" && req.Label != account.Label {
		if _, err := repo.GetByUserIDAndLabel(account.UserID, req.Label); err == nil {
			return jsonError(c, fiber.StatusConflict, "conflict", "A storage account with this label already exists")
		}
		account.Label = req.Label
	}
	account.EndpointURL = strings.TrimSpace(req.EndpointURL)
	if req.Region != "" {
		account.Region = req.Region
	}
	account.Bucket = req.Bucket
	if req.AccessKeyID != "" {
		account.AccessKeyID = req.AccessKeyID
	}
	if req.SecretKey != "" {
		secretEnc, err := security.EncryptString(req.SecretKey)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store credentials")
		}
		account.SecretKeyEnc = secretEnc
	}
	if req.ForcePathStyle != nil {
		account.ForcePathStyle = *req.ForcePathStyle
	}
	// Credentials changed, the old verification no longer holds.
	account.LastVerifiedAt = nil

	if err := repo.Update(account); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update storage account")
	}

	return c.JSON(account)
}

// HandleDeleteStorageAccount removes a profile.
func HandleDeleteStorageAccount(c *fiber.Ctx) error {
	account, ok := loadOwnedStorageAccount(c)
	if !ok {
		return nil
	}

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()
	if err := repo.Delete(account.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete storage account")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleVerifyStorageAccount probes the profile's endpoint with its stored
// credentials and records the verification time on success.
func HandleVerifyStorageAccount(c *fiber.Ctx) error {
	account, ok := loadOwnedStorageAccount(c)
	if !ok {
		return nil
	}

	secretKey, err := security.DecryptString(account.SecretKeyEnc)
	if err != nil {
		log.Errorf("secret decryption failed for storage account %d: %v", account.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stored credentials are unreadable")
	}

	client, err := objectstore.NewClient(c.Context(), account, secretKey)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to build storage client")
	}
	if err := client.Verify(c.Context()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "verification_failed",
			"message": err.Error(),
			"ok":      false,
		})
	}

	now := time.Now()
	account.LastVerifiedAt = &now
	repo := repository.GetGlobalFactory().GetStorageAccountRepository()
	if err := repo.Update(account); err != nil {
		log.Warnf("failed to record verification for storage account %d: %v", account.ID, err)
	}

	return c.JSON(fiber.Map{"ok": true, "verified_at": now.UTC().Format(time.RFC3339)})
}

// HandleSelectStorageAccount marks a profile as the currently selected one.
func HandleSelectStorageAccount(c *fiber.Ctx) error {
	account, ok := loadOwnedStorageAccount(c)
	if !ok {
		return nil
	}

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()
	if err := repo.SetCurrent(account.UserID, account.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to select storage account")
	}

	return c.JSON(fiber.Map{"selected": true})
}

// loadOwnedStorageAccount resolves the :id path parameter to a profile owned
// by the authenticated user and writes the error response itself when that
// fails. Foreign profiles read as not found so ids do not leak across
// accounts.
func loadOwnedStorageAccount(c *fiber.Ctx) (*models.StorageAccount, bool) {
	userCtx := usercontext.GetUserContext(c)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		_ = jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid storage account id")
		return nil, false
	}

	repo := repository.GetGlobalFactory().GetStorageAccountRepository()
	account, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = jsonError(c, fiber.StatusNotFound, "not_found", "Storage account not found")
		} else {
			_ = jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load storage account")
		}
		return nil, false
	}
	if account.UserID != userCtx.UserID {
		_ = jsonError(c, fiber.StatusNotFound, "not_found", "Storage account not found")
		return nil, false
	}
	return account, true
}
