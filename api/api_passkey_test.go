package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/zentity-id/go-zentity-server/passkey"
)

func newPasskeyTestRouter() (*gin.Engine, *passkey.ChallengeStore) {
	gin.SetMode(gin.TestMode)
	store := passkey.NewChallengeStore()
	verifier := passkey.NewVerifier(store, nil, "zentity.test", "https://app.zentity.test")
	a := NewPasskeyAPI(store, verifier, nil, nil, nil)

	router := gin.New()
	router.GET("/api/v1/passkey/challenge", a.Challenge)
	router.POST("/api/v1/passkey/verify", a.VerifyAssertion)
	return router, store
}

func TestChallengeEndpoint(t *testing.T) {
	router, store := newPasskeyTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/passkey/challenge", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	id, _ := body["challengeId"].(string)
	assert.NotEmpty(t, id)

	encoded, _ := body["challenge"].(string)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	assert.NoError(t, err)
	assert.Len(t, raw, passkey.ChallengeSize)

	// the challenge is live in the store under the returned id
	value, cErr := store.Consume(id)
	assert.NoError(t, cErr)
	assert.Equal(t, raw, value)
}

func TestVerifyEndpointRejectsMalformedBody(t *testing.T) {
	router, _ := newPasskeyTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/passkey/verify", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr ApiError
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
}

func TestVerifyEndpointRejectsMissingFields(t *testing.T) {
	router, _ := newPasskeyTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/passkey/verify", strings.NewReader(`{"challengeId":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr ApiError
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Message, "required")
}
