package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/zentity-id/go-zentity-server/metrics"
	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

// VaultAPI persists and serves ciphertext artifacts only. Key derivation and
// envelope operations happen client side or in the trusted services linking
// the keywrap package; plaintext and unwrapped DEKs never transit this API.
type VaultAPI struct {
	secretService *services.SecretService
	validator     *validator.Validate
	env           *types.Environment
}

func NewVaultAPI(secretService *services.SecretService, env *types.Environment) *VaultAPI {
	return &VaultAPI{
		secretService: secretService,
		validator:     validator.New(),
		env:           env,
	}
}

// StoreSecret godoc
// @Summary Persist an encrypted secret with its wrapped DEK copies
// @Description Persist an encrypted secret with its wrapped DEK copies
// @Tags Vault
// @Accept json
// @Produce json
// @Success 201 {object} map[string]string
// @Failure 400 {object} api.ApiError "invalid payload"
// @Router /api/v1/vault/secrets [post]
func (a *VaultAPI) StoreSecret(c *gin.Context) {
	var input types.StoreSecretInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid secret payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	blob, bErr := base64.StdEncoding.DecodeString(input.EncryptedBlob)
	if bErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "encryptedBlob is not valid base64")
		return
	}
	now := time.Now().UTC().UnixMilli()
	envelope := &types.SecretEnvelopeDB{
		SecretID:      input.SecretID,
		UserID:        input.UserID,
		SecretType:    input.SecretType,
		EncryptedBlob: blob,
		Format:        input.Format,
		Created:       now,
		Modified:      now,
	}
	wrappers := make([]*types.WrappedDekDB, 0, len(input.WrappedDeks))
	for _, w := range input.WrappedDeks {
		wrapped, wErr := base64.StdEncoding.DecodeString(w.WrappedDek)
		if wErr != nil {
			ApiErrorf(c, http.StatusBadRequest, "wrappedDek for %s is not valid base64", w.CredentialID)
			return
		}
		wrappers = append(wrappers, &types.WrappedDekDB{
			SecretID:     input.SecretID,
			CredentialID: w.CredentialID,
			UserID:       input.UserID,
			WrappedDek:   wrapped,
			Created:      now,
		})
	}

	if err := a.secretService.SaveSecret(envelope, wrappers); err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to store secret")
		return
	}
	metrics.SecretsStoredMetricsCount.Inc()
	c.JSON(http.StatusCreated, gin.H{"secretId": input.SecretID})
}

// GetSecret godoc
// @Summary Fetch an encrypted secret envelope
// @Description Fetch an encrypted secret envelope
// @Tags Vault
// @Produce json
// @Success 200 {object} types.SecretEnvelopeDB
// @Failure 404 {object} api.ApiError "secret not found"
// @Router /api/v1/vault/secrets/{id} [get]
func (a *VaultAPI) GetSecret(c *gin.Context) {
	secretID := c.Param("id")
	secret, err := a.secretService.GetSecret(secretID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "secret not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to fetch secret")
		return
	}
	metrics.SecretsRevealedMetricsCount.Inc()
	c.JSON(http.StatusOK, secret)
}

// ListWrappers godoc
// @Summary List wrapped DEK copies of a secret
// @Description List wrapped DEK copies of a secret
// @Tags Vault
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/vault/secrets/{id}/wrappers [get]
func (a *VaultAPI) ListWrappers(c *gin.Context) {
	secretID := c.Param("id")
	wrappers, err := a.secretService.ListWrappedDeks(secretID)
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to list wrappers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"secretId": secretID, "wrappers": wrappers})
}

// AddWrapper godoc
// @Summary Attach a wrapped DEK copy for an additional credential
// @Description Attach a wrapped DEK copy for an additional credential
// @Tags Vault
// @Accept json
// @Produce json
// @Success 201 {object} map[string]string
// @Failure 404 {object} api.ApiError "secret not found"
// @Router /api/v1/vault/secrets/{id}/wrappers [post]
func (a *VaultAPI) AddWrapper(c *gin.Context) {
	secretID := c.Param("id")
	var input types.WrappedDekUpload
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid wrapper payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	secret, sErr := a.secretService.GetSecret(secretID)
	if sErr != nil {
		if errors.Is(sErr, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "secret not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to fetch secret")
		return
	}

	wrapped, wErr := base64.StdEncoding.DecodeString(input.WrappedDek)
	if wErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "wrappedDek is not valid base64")
		return
	}
	record := &types.WrappedDekDB{
		SecretID:     secretID,
		CredentialID: input.CredentialID,
		UserID:       secret.UserID,
		WrappedDek:   wrapped,
		Created:      time.Now().UTC().UnixMilli(),
	}
	if err := a.secretService.AddWrappedDek(record); err != nil {
		if errors.Is(err, types.ErrConflict) {
			ApiErrorf(c, http.StatusConflict, "wrapper for this credential already exists")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to store wrapper")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"secretId": secretID, "credentialId": input.CredentialID})
}

// RevokeWrapper godoc
// @Summary Remove one credential's wrapped DEK copy
// @Description Remove one credential's wrapped DEK copy
// @Tags Vault
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} api.ApiError "wrapper not found"
// @Router /api/v1/vault/secrets/{id}/wrappers/{credentialId} [delete]
func (a *VaultAPI) RevokeWrapper(c *gin.Context) {
	secretID := c.Param("id")
	credentialID := c.Param("credentialId")
	if err := a.secretService.RevokeWrappedDek(secretID, credentialID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "wrapper not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to revoke wrapper")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
