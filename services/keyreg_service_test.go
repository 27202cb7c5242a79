package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/types"
)

func newMockKeyRegService() *KeyRegService {
	global.Conf.KeyReg.BaseURL = "http://keyreg.local"
	global.Conf.KeyReg.InternalToken = "internal-token"
	s := NewKeyRegService()
	httpmock.ActivateNonDefault(s.client.GetClient())
	return s
}

func TestRegisterServerKey(t *testing.T) {
	s := newMockKeyRegService()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://keyreg.local/keys",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "internal-token", req.Header.Get("x-zentity-internal-token"))
			return httpmock.NewJsonResponse(201, types.KeyRegistrationResult{KeyID: "key-42"})
		})

	result, err := s.RegisterServerKey(context.Background(), "serialized-evaluation-key")
	assert.NoError(t, err)
	assert.Equal(t, "key-42", result.KeyID)
}

func TestRegisterServerKeyRejected(t *testing.T) {
	s := newMockKeyRegService()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://keyreg.local/keys",
		httpmock.NewStringResponder(400, `{"error":"malformed key"}`))

	_, err := s.RegisterServerKey(context.Background(), "garbage")
	assert.ErrorIs(t, err, types.ErrBadRequest)
}

func TestRegisterServerKeyRegistryDown(t *testing.T) {
	s := newMockKeyRegService()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://keyreg.local/keys",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := s.RegisterServerKey(context.Background(), "serialized-evaluation-key")
	assert.ErrorIs(t, err, types.ErrInternal)
}
