package services

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/types"
)

const internalTokenHeader = "x-zentity-internal-token"

// KeyRegService proxies homomorphic server-key uploads to the internal key
// registry. Keys are large blobs; this service never inspects them.
type KeyRegService struct {
	client *resty.Client
}

func NewKeyRegService() *KeyRegService {
	client := resty.New().
		SetBaseURL(global.Conf.KeyReg.BaseURL).
		SetHeader(internalTokenHeader, global.Conf.KeyReg.InternalToken).
		SetTimeout(time.Second * 30)
	return &KeyRegService{client: client}
}

// RegisterServerKey forwards the serialized evaluation key and returns the
// registry-assigned key id.
func (s *KeyRegService) RegisterServerKey(ctx context.Context, serverKey string) (*types.KeyRegistrationResult, error) {
	var result types.KeyRegistrationResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"serverKey": serverKey}).
		SetResult(&result).
		Post("/keys")
	if err != nil {
		level.Error(global.Logger).Log("msg", "key registry unreachable", "error", err)
		return nil, types.ErrInternal
	}
	if resp.IsError() {
		level.Error(global.Logger).Log("msg", "key registry rejected upload", "status", resp.StatusCode())
		if resp.StatusCode() == 400 {
			return nil, types.ErrBadRequest
		}
		return nil, types.ErrInternal
	}
	return &result, nil
}
