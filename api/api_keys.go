package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

type KeysAPI struct {
	keyRegService *services.KeyRegService
	validator     *validator.Validate
}

func NewKeysAPI(keyRegService *services.KeyRegService) *KeysAPI {
	return &KeysAPI{
		keyRegService: keyRegService,
		validator:     validator.New(),
	}
}

// RegisterServerKey godoc
// @Summary Register a homomorphic evaluation key with the key registry
// @Description Register a homomorphic evaluation key with the key registry
// @Tags Keys
// @Accept json
// @Produce json
// @Success 201 {object} types.KeyRegistrationResult
// @Failure 400 {object} api.ApiError "invalid key material"
// @Router /api/v1/keys/register [post]
func (a *KeysAPI) RegisterServerKey(c *gin.Context) {
	var input types.KeyRegistrationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid key payload")
		return
	}
	if err := a.validator.Struct(input); err != nil {
		msg := ValidatorErrorToUser(err.(validator.ValidationErrors))
		ApiErrorf(c, http.StatusBadRequest, "%s", msg)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second*30)
	defer cancel()

	result, err := a.keyRegService.RegisterServerKey(ctx, input.ServerKey)
	if err != nil {
		if errors.Is(err, types.ErrBadRequest) {
			ApiErrorf(c, http.StatusBadRequest, "key registry rejected the key material")
			return
		}
		ApiErrorf(c, http.StatusBadGateway, "key registry unavailable")
		return
	}
	c.JSON(http.StatusCreated, result)
}
