package services

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-kit/log/level"

	"github.com/zentity-id/go-zentity-server/cose"
	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/types"
)

// CredentialService stores passkey credentials. It implements
// passkey.CredentialStore for the assertion ceremony.
type CredentialService struct {
	credRepo repository.Repository
}

func NewCredentialService(dbSelector repository.DBSelector) *CredentialService {
	credRepo, err := dbSelector.ChooseDB(repository.PasskeyCredential)
	if err != nil {
		panic(err)
	}
	return &CredentialService{credRepo: credRepo}
}

// GetByCredentialID gets a credential from the database
func (s *CredentialService) GetByCredentialID(ctx context.Context, credentialID string) (*types.PasskeyCredentialDB, error) {
	resp, err := s.credRepo.GetByID(ctx, credentialID)
	if err != nil {
		if err != types.ErrNotFound {
			level.Error(global.Logger).Log("msg", "failed to get credential", "error", err)
		}
		return nil, err
	}
	var cred types.PasskeyCredentialDB
	if mErr := repository.MapToObject(resp, &cred); mErr != nil {
		return nil, mErr
	}
	return &cred, nil
}

// UpdateCounter persists a new counter value after a successful assertion.
// Called only once every verification gate has passed.
func (s *CredentialService) UpdateCounter(ctx context.Context, credentialID string, counter uint32, lastUsedAt int64) error {
	cred, err := s.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return err
	}
	cred.Counter = counter
	cred.LastUsedAt = lastUsedAt
	return s.credRepo.Update(ctx, credentialID, cred)
}

// Register installs a new passkey credential. The COSE key is decoded up front
// so a credential that can never verify is rejected at enrollment time.
func (s *CredentialService) Register(reg *types.CredentialRegistration) (*types.PasskeyCredentialDB, error) {
	publicKey, err := base64.StdEncoding.DecodeString(reg.PublicKey)
	if err != nil {
		return nil, types.ErrBadRequest
	}
	if _, err := cose.DecodePublicKey(publicKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, getErr := s.credRepo.GetByID(ctx, reg.CredentialID)
	if getErr == nil {
		return nil, types.ErrConflict
	}
	if getErr != types.ErrNotFound {
		return nil, getErr
	}

	cred := &types.PasskeyCredentialDB{
		CredentialID: reg.CredentialID,
		UserID:       reg.UserID,
		PublicKey:    publicKey,
		Counter:      0,
		DeviceType:   reg.DeviceType,
		BackedUp:     reg.BackedUp,
		Transports:   reg.Transports,
		Name:         reg.Name,
		Created:      time.Now().UTC().UnixMilli(),
	}
	if err := s.credRepo.Save(ctx, cred.CredentialID, cred); err != nil {
		level.Error(global.Logger).Log("msg", "failed to save credential", "error", err)
		return nil, err
	}
	return cred, nil
}

// Delete removes a credential. Its DEK wrappers are revoked separately by the
// secret service; the secret itself stays encrypted for remaining credentials.
func (s *CredentialService) Delete(credentialID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	return s.credRepo.Delete(ctx, credentialID)
}
