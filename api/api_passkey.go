package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/zentity-id/go-zentity-server/metrics"
	"github.com/zentity-id/go-zentity-server/passkey"
	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

type PasskeyAPI struct {
	challengeStore    *passkey.ChallengeStore
	verifier          *passkey.Verifier
	credentialService *services.CredentialService
	secretService     *services.SecretService
	validator         *validator.Validate
	env               *types.Environment
}

func NewPasskeyAPI(challengeStore *passkey.ChallengeStore, verifier *passkey.Verifier, credentialService *services.CredentialService, secretService *services.SecretService, env *types.Environment) *PasskeyAPI {
	return &PasskeyAPI{
		challengeStore:    challengeStore,
		verifier:          verifier,
		credentialService: credentialService,
		secretService:     secretService,
		validator:         validator.New(),
		env:               env,
	}
}

// Challenge godoc
// @Summary Issue a single-use assertion challenge
// @Description Issue a single-use assertion challenge
// @Tags Passkey
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 429 {object} api.ApiError "rate limit exceeded"
// @Router /api/v1/passkey/challenge [get]
func (a *PasskeyAPI) Challenge(c *gin.Context) {
	challenge, err := a.challengeStore.Issue()
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	metrics.ChallengesIssuedMetricsCount.Inc()
	c.JSON(http.StatusOK, gin.H{
		"challengeId": challenge.ID,
		"challenge":   base64.RawURLEncoding.EncodeToString(challenge.Value),
		"expiresAt":   challenge.ExpiresAt.UnixMilli(),
	})
}

// VerifyAssertion godoc
// @Summary Verify a passkey assertion against an issued challenge
// @Description Verify a passkey assertion against an issued challenge
// @Tags Passkey
// @Accept json
// @Produce json
// @Success 200 {object} types.AssertionResult
// @Failure 400 {object} api.ApiError "malformed assertion"
// @Failure 401 {object} api.ApiError "assertion rejected"
// @Failure 404 {object} api.ApiError "unknown challenge or credential"
// @Router /api/v1/passkey/verify [post]
func (a *PasskeyAPI) VerifyAssertion(c *gin.Context) {
	var input types.AssertionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid assertion payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second*10)
	defer cancel()

	start := time.Now()
	result, err := a.verifier.VerifyAssertion(ctx, &input)
	metrics.AssertionProcessingLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.AssertionRejectedMetricsCount.Inc()
		switch {
		case errors.Is(err, types.ErrChallengeNotFound):
			ApiErrorf(c, http.StatusNotFound, "unknown challenge")
		case errors.Is(err, types.ErrChallengeExpired):
			ApiErrorf(c, http.StatusUnauthorized, "challenge expired")
		case errors.Is(err, types.ErrUnknownCredential), errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "unknown credential")
		case errors.Is(err, types.ErrDecode), errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "malformed assertion")
		default:
			// challenge mismatch, origin, rpId, flags, counter and signature
			// failures all collapse to a single rejection
			ApiErrorf(c, http.StatusUnauthorized, "assertion rejected")
		}
		return
	}
	metrics.AssertionVerifiedMetricsCount.Inc()
	c.JSON(http.StatusOK, result)
}

// RegisterCredential godoc
// @Summary Install a new passkey credential
// @Description Install a new passkey credential
// @Tags Passkey
// @Accept json
// @Produce json
// @Success 201 {object} types.PasskeyCredentialDB
// @Failure 400 {object} api.ApiError "invalid credential"
// @Failure 409 {object} api.ApiError "credential already registered"
// @Router /api/v1/passkey/register [post]
func (a *PasskeyAPI) RegisterCredential(c *gin.Context) {
	var input types.CredentialRegistration
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid registration payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	cred, err := a.credentialService.Register(&input)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrConflict):
			ApiErrorf(c, http.StatusConflict, "credential already registered")
		case errors.Is(err, types.ErrDecode), errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "invalid credential public key")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to register credential")
		}
		return
	}
	c.JSON(http.StatusCreated, cred)
}

// RevokeCredential godoc
// @Summary Revoke a passkey credential and its DEK wrappers
// @Description Revoke a passkey credential and its DEK wrappers
// @Tags Passkey
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} api.ApiError "unknown credential"
// @Router /api/v1/passkey/credentials/{id} [delete]
func (a *PasskeyAPI) RevokeCredential(c *gin.Context) {
	credentialID := c.Param("id")
	if credentialID == "" {
		ApiErrorf(c, http.StatusBadRequest, "credential id is required")
		return
	}
	if err := a.credentialService.Delete(credentialID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "unknown credential")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to revoke credential")
		return
	}
	// remaining credentials keep their own wrappers, so the user keeps access
	if err := a.secretService.RevokeCredentialWrappers(credentialID); err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "credential revoked but wrapper cleanup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
