package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/types"
	"github.com/zentity-id/go-zentity-server/util"
)

type UserService struct {
	userRepo repository.Repository
}

func NewUserService(dbSelector repository.DBSelector) *UserService {
	userRepo, err := dbSelector.ChooseDB(repository.User)
	if err != nil {
		panic(err)
	}
	return &UserService{userRepo: userRepo}
}

// GetUser gets a user from the database
func (s *UserService) GetUser(userID string) (*types.UserDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if err != types.ErrNotFound {
			level.Error(global.Logger).Log("msg", "failed to get user", "error", err)
		}
		return nil, err
	}
	var user types.UserDB
	if mErr := repository.MapToObject(resp, &user); mErr != nil {
		return nil, mErr
	}
	return &user, nil
}

// CreateUser stores a new account keyed by user id. The email identifier is
// stored only as its scrypt hash.
func (s *UserService) CreateUser(userID, email string) (*types.UserDB, error) {
	hashed, hErr := util.ScryptEmail(strings.ToLower(email))
	if hErr != nil {
		return nil, hErr
	}
	if _, err := s.FindUserByEmailHash(hashed); err == nil {
		return nil, types.ErrUserExists
	} else if err != types.ErrNotFound {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	user := &types.UserDB{
		UserID:         userID,
		EncryptedEmail: hashed,
		Created:        time.Now().UTC().UnixMilli(),
	}
	if err := s.userRepo.Save(ctx, userID, user); err != nil {
		level.Error(global.Logger).Log("msg", "failed to save user", "error", err)
		return nil, err
	}
	return user, nil
}

// SaveUser overrides an existing user document (guardian updates).
func (s *UserService) SaveUser(user *types.UserDB) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	user.Modified = time.Now().UTC().UnixMilli()
	if err := s.userRepo.Update(ctx, user.UserID, user); err != nil {
		level.Error(global.Logger).Log("msg", "failed to save user", "error", err)
		return err
	}
	return nil
}

// FindUserByEmailHash looks an account up by the scrypt hash of its email
// (querying the field: encryptedEmail)
func (s *UserService) FindUserByEmailHash(emailHash string) (*types.UserDB, error) {
	client := s.userRepo.GetClient().(*resty.Client).R().
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"selector": map[string]interface{}{
				"encryptedEmail": map[string]interface{}{
					"$eq": emailHash,
				},
			},
			"limit": 1,
		})
	resp, err := client.Post(fmt.Sprintf("%s/_find", s.userRepo.GetDBName()))
	if err != nil {
		level.Error(global.Logger).Log("msg", "failed to find user by email", "error", err)
		return nil, err
	}
	if resp.IsError() {
		if resp.StatusCode() == 404 {
			return nil, types.ErrNotFound
		}
		level.Error(global.Logger).Log("msg", "failed to find user by email", "error", resp.Error())
		return nil, types.ErrInternal
	}

	var result struct {
		Docs []json.RawMessage `json:"docs"`
	}
	if mErr := json.Unmarshal(resp.Body(), &result); mErr != nil {
		level.Error(global.Logger).Log("msg", "failed to map find result", "error", mErr)
		return nil, mErr
	}
	if len(result.Docs) == 0 {
		return nil, types.ErrNotFound
	}
	var user types.UserDB
	if mErr := json.Unmarshal(result.Docs[0], &user); mErr != nil {
		return nil, mErr
	}
	return &user, nil
}
