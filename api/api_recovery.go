package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/zentity-id/go-zentity-server/metrics"
	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

type RecoveryAPI struct {
	recoveryService *services.RecoveryService
	validator       *validator.Validate
	env             *types.Environment
}

func NewRecoveryAPI(recoveryService *services.RecoveryService, env *types.Environment) *RecoveryAPI {
	return &RecoveryAPI{
		recoveryService: recoveryService,
		validator:       validator.New(),
		env:             env,
	}
}

// Start godoc
// @Summary Start a guardian recovery challenge
// @Description Start a guardian recovery challenge
// @Tags Recovery
// @Accept json
// @Produce json
// @Success 201 {object} types.RecoveryStartResult
// @Failure 400 {object} api.ApiError "account has no guardians"
// @Failure 404 {object} api.ApiError "account not found"
// @Failure 429 {object} api.ApiError "rate limit exceeded"
// @Router /api/v1/recovery/start [post]
func (a *RecoveryAPI) Start(c *gin.Context) {
	var input types.RecoveryStartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid recovery payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	result, err := a.recoveryService.StartRecovery(input.Identifier)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "account not found")
		case errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "account has no registered guardians")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to start recovery")
		}
		return
	}
	metrics.RecoveryStartedMetricsCount.Inc()
	c.JSON(http.StatusCreated, result)
}

// Approve godoc
// @Summary Record one guardian approval
// @Description Record one guardian approval
// @Tags Recovery
// @Accept json
// @Produce json
// @Success 200 {object} types.RecoveryStatusResult
// @Failure 400 {object} api.ApiError "invalid proof"
// @Failure 404 {object} api.ApiError "unknown approval token"
// @Failure 410 {object} api.ApiError "recovery expired"
// @Router /api/v1/recovery/approve [post]
func (a *RecoveryAPI) Approve(c *gin.Context) {
	var input types.RecoveryApproveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid approval payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	result, err := a.recoveryService.ApproveGuardian(input.Token, input.Proof)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "unknown approval token")
		case errors.Is(err, types.ErrRecoveryExpired):
			metrics.RecoveryExpiredMetricsCount.Inc()
			ApiErrorf(c, http.StatusGone, "recovery challenge expired")
		case errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "invalid guardian proof")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to record approval")
		}
		return
	}
	if result.Status == types.RecoveryStatusCompleted {
		metrics.RecoveryCompletedMetricsCount.Inc()
	}
	c.JSON(http.StatusOK, result)
}

// Status godoc
// @Summary Poll a recovery challenge
// @Description Poll a recovery challenge. The context token is included only
// when the recoveryToken query parameter matches the one issued at start.
// @Tags Recovery
// @Param recoveryToken query string false "initiator token from recovery start"
// @Produce json
// @Success 200 {object} types.RecoveryStatusResult
// @Failure 404 {object} api.ApiError "unknown challenge"
// @Failure 410 {object} api.ApiError "recovery expired"
// @Router /api/v1/recovery/{id} [get]
func (a *RecoveryAPI) Status(c *gin.Context) {
	challengeID := c.Param("id")
	result, err := a.recoveryService.Status(challengeID, c.Query("recoveryToken"))
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "unknown recovery challenge")
		case errors.Is(err, types.ErrRecoveryExpired):
			metrics.RecoveryExpiredMetricsCount.Inc()
			ApiErrorf(c, http.StatusGone, "recovery challenge expired")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to fetch recovery status")
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// Finalize godoc
// @Summary Install a new passkey from a completed recovery
// @Description Install a new passkey from a completed recovery
// @Tags Recovery
// @Accept json
// @Produce json
// @Success 201 {object} types.PasskeyCredentialDB
// @Failure 400 {object} api.ApiError "invalid or reused context token"
// @Failure 403 {object} api.ApiError "guardian threshold not met"
// @Failure 410 {object} api.ApiError "recovery expired"
// @Router /api/v1/recovery/finalize [post]
func (a *RecoveryAPI) Finalize(c *gin.Context) {
	var input types.RecoveryFinalizeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid finalize payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	cred, err := a.recoveryService.Finalize(input.ContextToken, &input.Credential)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrThresholdNotMet):
			ApiErrorf(c, http.StatusForbidden, "guardian threshold not met")
		case errors.Is(err, types.ErrRecoveryExpired):
			metrics.RecoveryExpiredMetricsCount.Inc()
			ApiErrorf(c, http.StatusGone, "recovery challenge expired")
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "unknown recovery challenge")
		case errors.Is(err, types.ErrConflict):
			ApiErrorf(c, http.StatusConflict, "credential already registered")
		case errors.Is(err, types.ErrBadRequest), errors.Is(err, types.ErrDecode):
			ApiErrorf(c, http.StatusBadRequest, "invalid or reused context token")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to finalize recovery")
		}
		return
	}
	c.JSON(http.StatusCreated, cred)
}
