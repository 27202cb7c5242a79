package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/types"
)

// SecretService persists secret envelopes and their per-credential DEK
// wrappers. It never sees plaintext or unwrapped keys; every stored byte is
// ciphertext produced by the keywrap package on the client side of the trust
// boundary.
type SecretService struct {
	secretRepo  repository.Repository
	wrappedRepo repository.Repository
}

func NewSecretService(dbSelector repository.DBSelector) *SecretService {
	secretRepo, err := dbSelector.ChooseDB(repository.Secret)
	if err != nil {
		panic(err)
	}
	wrappedRepo, err := dbSelector.ChooseDB(repository.WrappedDek)
	if err != nil {
		panic(err)
	}
	return &SecretService{secretRepo: secretRepo, wrappedRepo: wrappedRepo}
}

// wrapped DEK documents are keyed by secret and credential so one secret can
// carry one wrapper per enrolled credential
func wrappedDekDocID(secretID, credentialID string) string {
	return secretID + ":" + credentialID
}

// SaveSecret stores an envelope and the wrapped DEK copies uploaded with it.
func (s *SecretService) SaveSecret(envelope *types.SecretEnvelopeDB, wrappers []*types.WrappedDekDB) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Now().UTC().UnixMilli()
	existing, gErr := s.GetSecret(envelope.SecretID)
	if gErr == nil {
		envelope.UnderscoreRev = existing.UnderscoreRev
		envelope.Created = existing.Created
		envelope.Modified = now
	} else if gErr != types.ErrNotFound {
		return gErr
	} else {
		envelope.Created = now
	}

	if err := s.secretRepo.Save(ctx, envelope.SecretID, envelope); err != nil {
		level.Error(global.Logger).Log("msg", "failed to save secret envelope", "error", err)
		return err
	}
	for _, w := range wrappers {
		w.Created = now
		docID := wrappedDekDocID(w.SecretID, w.CredentialID)
		if err := s.wrappedRepo.Save(ctx, docID, w); err != nil {
			level.Error(global.Logger).Log("msg", "failed to save wrapped dek", "error", err, "secretId", w.SecretID)
			return err
		}
	}
	return nil
}

// GetSecret gets a secret envelope from the database
func (s *SecretService) GetSecret(secretID string) (*types.SecretEnvelopeDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := s.secretRepo.GetByID(ctx, secretID)
	if err != nil {
		return nil, err
	}
	var envelope types.SecretEnvelopeDB
	if mErr := repository.MapToObject(resp, &envelope); mErr != nil {
		return nil, mErr
	}
	return &envelope, nil
}

// GetWrappedDek returns the DEK wrapper for one (secret, credential) pair.
func (s *SecretService) GetWrappedDek(secretID, credentialID string) (*types.WrappedDekDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := s.wrappedRepo.GetByID(ctx, wrappedDekDocID(secretID, credentialID))
	if err != nil {
		return nil, err
	}
	var wrapped types.WrappedDekDB
	if mErr := repository.MapToObject(resp, &wrapped); mErr != nil {
		return nil, mErr
	}
	return &wrapped, nil
}

// AddWrappedDek installs an additional wrapper for an existing secret (new
// credential enrollment).
func (s *SecretService) AddWrappedDek(wrapped *types.WrappedDekDB) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	wrapped.Created = time.Now().UTC().UnixMilli()
	return s.wrappedRepo.Save(ctx, wrappedDekDocID(wrapped.SecretID, wrapped.CredentialID), wrapped)
}

// ListWrappedDeks lists all wrappers of one secret (querying the field: secretId)
func (s *SecretService) ListWrappedDeks(secretID string) ([]*types.WrappedDekDB, error) {
	client := s.wrappedRepo.GetClient().(*resty.Client).R().
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"selector": map[string]interface{}{
				"secretId": map[string]interface{}{
					"$eq": secretID,
				},
			},
			"limit": 100,
		})
	resp, err := client.Post(fmt.Sprintf("%s/_find", s.wrappedRepo.GetDBName()))
	if err != nil {
		level.Error(global.Logger).Log("msg", "failed to list wrapped deks", "error", err)
		return nil, err
	}
	if resp.IsError() {
		if resp.StatusCode() == 404 {
			return nil, types.ErrNotFound
		}
		return nil, types.ErrInternal
	}
	var result struct {
		Docs []*types.WrappedDekDB `json:"docs"`
	}
	if mErr := json.Unmarshal(resp.Body(), &result); mErr != nil {
		return nil, mErr
	}
	return result.Docs, nil
}

// RevokeWrappedDek deletes one credential's wrapper. The secret itself is not
// re-encrypted; remaining credentials keep their own wrappers of the same DEK.
func (s *SecretService) RevokeWrappedDek(secretID, credentialID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	return s.wrappedRepo.Delete(ctx, wrappedDekDocID(secretID, credentialID))
}

// RevokeCredentialWrappers removes every wrapper held by a credential across
// all secrets (credential revocation).
func (s *SecretService) RevokeCredentialWrappers(credentialID string) error {
	client := s.wrappedRepo.GetClient().(*resty.Client).R().
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"selector": map[string]interface{}{
				"credentialId": map[string]interface{}{
					"$eq": credentialID,
				},
			},
			"limit": 500,
		})
	resp, err := client.Post(fmt.Sprintf("%s/_find", s.wrappedRepo.GetDBName()))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return types.ErrInternal
	}
	var result struct {
		Docs []*types.WrappedDekDB `json:"docs"`
	}
	if mErr := json.Unmarshal(resp.Body(), &result); mErr != nil {
		return mErr
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	for _, w := range result.Docs {
		if dErr := s.wrappedRepo.Delete(ctx, wrappedDekDocID(w.SecretID, w.CredentialID)); dErr != nil && dErr != types.ErrNotFound {
			return dErr
		}
	}
	return nil
}
