package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/totp"
	"github.com/zentity-id/go-zentity-server/types"
	"github.com/zentity-id/go-zentity-server/util"
)

const (
	defaultRecoveryTTL = 30 * time.Minute
	approvalTokenSize  = 32

	contextTokenIssuer = "zentity-custody"
	// redis key prefix marking consumed context tokens
	contextTokenUsedPrefix = "recovery_ctx_used_"
)

// contextTokenLedger tracks consumed finalize token ids. A claim is atomic;
// a released claim makes the token usable again.
type contextTokenLedger interface {
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jti string)
}

type redisTokenLedger struct {
	client *redis.Client
}

func (l *redisTokenLedger) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, contextTokenUsedPrefix+jti, "1", ttl).Result()
}

func (l *redisTokenLedger) Release(ctx context.Context, jti string) {
	l.client.Del(ctx, contextTokenUsedPrefix+jti)
}

// RecoveryService runs the guardian-threshold recovery state machine:
// started → pending → (completed | expired). The approval count is always
// recomputed from the approval records, so concurrent guardian approvals can
// never double-count.
type RecoveryService struct {
	userService       *UserService
	credentialService *CredentialService
	recoveryRepo      repository.Repository
	approvalRepo      repository.Repository
	tokenLedger       contextTokenLedger
	env               *types.Environment
}

func NewRecoveryService(dbSelector repository.DBSelector, userService *UserService, credentialService *CredentialService, env *types.Environment) *RecoveryService {
	recoveryRepo, err := dbSelector.ChooseDB(repository.RecoveryChallenge)
	if err != nil {
		panic(err)
	}
	approvalRepo, err := dbSelector.ChooseDB(repository.GuardianApproval)
	if err != nil {
		panic(err)
	}
	return &RecoveryService{
		userService:       userService,
		credentialService: credentialService,
		recoveryRepo:      recoveryRepo,
		approvalRepo:      approvalRepo,
		tokenLedger:       &redisTokenLedger{client: env.RedisClient},
		env:               env,
	}
}

func recoveryTTL() time.Duration {
	if global.Conf.Recovery.TTLMinutes > 0 {
		return time.Duration(global.Conf.Recovery.TTLMinutes) * time.Minute
	}
	return defaultRecoveryTTL
}

// CountApprovals counts distinct guardians with a recorded approval. Duplicate
// approvals by the same guardian count once.
func CountApprovals(approvals []*types.GuardianApprovalDB) int {
	seen := map[string]bool{}
	for _, a := range approvals {
		if a != nil && a.ApprovedAt > 0 {
			seen[a.GuardianID] = true
		}
	}
	return len(seen)
}

// StartRecovery resolves the account by its email identifier, creates guardian
// approval tokens and the recovery challenge, and queues best-effort guardian
// notifications. Delivery failures downgrade to the manual-link flow; they
// never fail the start call.
func (s *RecoveryService) StartRecovery(identifier string) (*types.RecoveryStartResult, error) {
	hashed, hErr := util.ScryptEmail(strings.ToLower(identifier))
	if hErr != nil {
		return nil, hErr
	}
	user, uErr := s.userService.FindUserByEmailHash(hashed)
	if uErr != nil {
		return nil, uErr
	}
	if len(user.Guardians) == 0 {
		return nil, types.ErrBadRequest
	}

	threshold := user.GuardianThreshold
	if threshold <= 0 || threshold > len(user.Guardians) {
		// majority by default
		threshold = len(user.Guardians)/2 + 1
	}

	now := time.Now().UTC()
	expiresAt := now.Add(recoveryTTL()).UnixMilli()
	challengeID := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	tokens := make([]string, 0, len(user.Guardians))
	notified := make([]string, 0, len(user.Guardians))
	emailGuardians := 0
	emailQueued := 0
	for _, g := range user.Guardians {
		token, tErr := util.RandomToken(approvalTokenSize)
		if tErr != nil {
			return nil, tErr
		}
		approval := &types.GuardianApprovalDB{
			Token:        token,
			ChallengeID:  challengeID,
			GuardianID:   g.GuardianID,
			GuardianType: g.Type,
			ExpiresAt:    expiresAt,
		}
		if err := s.approvalRepo.Save(ctx, token, approval); err != nil {
			level.Error(global.Logger).Log("msg", "failed to save guardian approval", "error", err)
			return nil, err
		}
		tokens = append(tokens, token)
		notified = append(notified, g.GuardianID)

		if g.Type == types.GuardianTypeEmail {
			emailGuardians++
			if s.enqueueGuardianNotify(challengeID, g, token, expiresAt) {
				emailQueued++
			}
		}
	}

	delivery := types.RecoveryDeliveryManual
	if emailGuardians > 0 && emailQueued == emailGuardians {
		delivery = types.RecoveryDeliveryEmail
	} else if emailQueued > 0 {
		delivery = types.RecoveryDeliveryMixed
	}

	contextToken, ctErr := s.mintContextToken(challengeID, user.UserID, expiresAt)
	if ctErr != nil {
		return nil, ctErr
	}
	initiatorToken, itErr := util.RandomToken(approvalTokenSize)
	if itErr != nil {
		return nil, itErr
	}

	challenge := &types.RecoveryChallengeDB{
		ChallengeID:    challengeID,
		UserID:         user.UserID,
		ContextToken:   contextToken,
		InitiatorToken: initiatorToken,
		Threshold:      threshold,
		Tokens:         tokens,
		Delivery:       delivery,
		Status:         types.RecoveryStatusPending,
		Created:        now.UnixMilli(),
		ExpiresAt:      expiresAt,
	}
	if err := s.recoveryRepo.Save(ctx, challengeID, challenge); err != nil {
		level.Error(global.Logger).Log("msg", "failed to save recovery challenge", "error", err)
		return nil, err
	}

	return &types.RecoveryStartResult{
		ChallengeID:   challengeID,
		RecoveryToken: initiatorToken,
		Guardians:     notified,
		Threshold:     threshold,
		Delivery:      delivery,
		ExpiresAt:     expiresAt,
	}, nil
}

// enqueueGuardianNotify hands delivery to the task queue. Returns false when
// the enqueue itself failed; the caller records the degraded delivery mode.
func (s *RecoveryService) enqueueGuardianNotify(challengeID string, g types.Guardian, token string, expiresAt int64) bool {
	if s.env == nil || s.env.TaskClient == nil {
		return false
	}
	payload, mErr := json.Marshal(&types.GuardianNotifyTask{
		ChallengeID: challengeID,
		GuardianID:  g.GuardianID,
		Email:       g.Email,
		ApprovalURL: fmt.Sprintf("%s?token=%s", global.Conf.Recovery.ApprovalBaseURL, token),
		ExpiresAt:   expiresAt,
	})
	if mErr != nil {
		return false
	}
	task := asynq.NewTask(types.QueueTypeGuardianNotify, payload)
	if _, err := s.env.TaskClient.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		level.Error(global.Logger).Log("msg", "failed to enqueue guardian notification", "error", err, "guardian", g.GuardianID)
		return false
	}
	return true
}

// ApproveGuardian records one guardian approval. Email guardians prove by
// token possession; deviceFactor guardians present a TOTP or backup code.
// The recovery challenge's expiry is authoritative: a token used after the
// challenge expired is rejected even if the token's own TTL has not elapsed.
func (s *RecoveryService) ApproveGuardian(token, proof string) (*types.RecoveryStatusResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	approval, aErr := s.getApproval(ctx, token)
	if aErr != nil {
		return nil, aErr
	}
	challenge, cErr := s.getChallenge(ctx, approval.ChallengeID)
	if cErr != nil {
		return nil, cErr
	}

	now := time.Now().UTC().UnixMilli()
	if challenge.Status == types.RecoveryStatusExpired || now > challenge.ExpiresAt {
		s.markExpired(ctx, challenge)
		return nil, types.ErrRecoveryExpired
	}
	if challenge.Status == types.RecoveryStatusCompleted {
		return s.guardianResult(ctx, challenge)
	}

	if approval.GuardianType == types.GuardianTypeDeviceFactor {
		if !s.verifyDeviceFactorProof(challenge.UserID, approval.GuardianID, proof) {
			return nil, types.ErrBadRequest
		}
	}

	// idempotent: an already-approved token does not change state and the
	// recomputed count cannot double
	if approval.ApprovedAt == 0 {
		approval.ApprovedAt = now
		if err := s.approvalRepo.Update(ctx, approval.Token, approval); err != nil {
			level.Error(global.Logger).Log("msg", "failed to record approval", "error", err)
			return nil, err
		}
	}

	return s.guardianResult(ctx, challenge)
}

// guardianResult is the view an approving guardian gets: the tally only. The
// challenge id and the context token never leave through the approve path.
func (s *RecoveryService) guardianResult(ctx context.Context, challenge *types.RecoveryChallengeDB) (*types.RecoveryStatusResult, error) {
	result, err := s.statusResult(ctx, challenge)
	if err != nil {
		return nil, err
	}
	result.ChallengeID = ""
	return result, nil
}

// Status is the idempotent poll. It transitions the challenge to expired or
// completed as warranted by wall clock and the approval records. The context
// token is released only when the caller presents the recovery token handed
// out at start.
func (s *RecoveryService) Status(challengeID, recoveryToken string) (*types.RecoveryStatusResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	challenge, cErr := s.getChallenge(ctx, challengeID)
	if cErr != nil {
		return nil, cErr
	}
	now := time.Now().UTC().UnixMilli()
	if challenge.Status == types.RecoveryStatusPending && now > challenge.ExpiresAt {
		s.markExpired(ctx, challenge)
		return nil, types.ErrRecoveryExpired
	}
	if challenge.Status == types.RecoveryStatusExpired {
		return nil, types.ErrRecoveryExpired
	}
	result, rErr := s.statusResult(ctx, challenge)
	if rErr != nil {
		return nil, rErr
	}
	if challenge.Status == types.RecoveryStatusCompleted && challenge.InitiatorToken != "" &&
		subtle.ConstantTimeCompare([]byte(recoveryToken), []byte(challenge.InitiatorToken)) == 1 {
		result.ContextToken = challenge.ContextToken
	}
	return result, nil
}

// Finalize installs a new passkey from a completed recovery. The context token
// is verified against the server signing key and is single-use.
func (s *RecoveryService) Finalize(contextToken string, reg *types.CredentialRegistration) (*types.PasskeyCredentialDB, error) {
	challengeID, userID, jti, vErr := s.verifyContextToken(contextToken)
	if vErr != nil {
		return nil, vErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	challenge, cErr := s.getChallenge(ctx, challengeID)
	if cErr != nil {
		return nil, cErr
	}
	now := time.Now().UTC().UnixMilli()
	if challenge.Status == types.RecoveryStatusExpired || now > challenge.ExpiresAt {
		s.markExpired(ctx, challenge)
		return nil, types.ErrRecoveryExpired
	}

	approvals, lErr := s.listApprovals(ctx, challenge)
	if lErr != nil {
		return nil, lErr
	}
	if CountApprovals(approvals) < challenge.Threshold {
		return nil, types.ErrThresholdNotMet
	}

	// single use, atomically claimed
	closed, rErr := s.tokenLedger.Claim(ctx, jti, recoveryTTL())
	if rErr != nil {
		return nil, rErr
	}
	if !closed {
		return nil, types.ErrBadRequest
	}

	// the new credential belongs to the recovered account, whatever the
	// caller put in the payload
	reg.UserID = userID
	cred, regErr := s.credentialService.Register(reg)
	if regErr != nil {
		// registration did not happen, so the token is not consumed
		s.tokenLedger.Release(ctx, jti)
		return nil, regErr
	}

	challenge.Status = types.RecoveryStatusCompleted
	challenge.ContextToken = ""
	if err := s.recoveryRepo.Update(ctx, challenge.ChallengeID, challenge); err != nil {
		level.Error(global.Logger).Log("msg", "failed to close recovery challenge", "error", err)
	}
	return cred, nil
}

// RemoveExpiredRecoveries marks pending challenges past their deadline as
// expired. Wired to a cron schedule.
func (s *RecoveryService) RemoveExpiredRecoveries() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Now().UTC().UnixMilli()
	query := fmt.Sprintf("_design/recovery/_view/expired?endkey=%d&limit=100", now)
	response, err := s.recoveryRepo.GetByID(ctx, query)
	if err != nil {
		level.Error(global.Logger).Log("msg", "failed to query expired recoveries", "error", err)
		return
	}
	var view struct {
		Rows []struct {
			ID string `json:"id"`
		} `json:"rows"`
	}
	if mErr := repository.MapToObject(response, &view); mErr != nil {
		level.Error(global.Logger).Log("msg", "failed to map expired recoveries", "error", mErr)
		return
	}
	for _, row := range view.Rows {
		challenge, cErr := s.getChallenge(ctx, row.ID)
		if cErr != nil {
			continue
		}
		if challenge.Status == types.RecoveryStatusPending && now > challenge.ExpiresAt {
			s.markExpired(ctx, challenge)
		}
	}
}

func (s *RecoveryService) markExpired(ctx context.Context, challenge *types.RecoveryChallengeDB) {
	if challenge.Status != types.RecoveryStatusPending {
		return
	}
	challenge.Status = types.RecoveryStatusExpired
	challenge.ContextToken = ""
	if err := s.recoveryRepo.Update(ctx, challenge.ChallengeID, challenge); err != nil {
		level.Error(global.Logger).Log("msg", "failed to expire recovery challenge", "error", err)
	}
}

func (s *RecoveryService) statusResult(ctx context.Context, challenge *types.RecoveryChallengeDB) (*types.RecoveryStatusResult, error) {
	approvals, lErr := s.listApprovals(ctx, challenge)
	if lErr != nil {
		return nil, lErr
	}
	count := CountApprovals(approvals)
	if count >= challenge.Threshold && challenge.Status == types.RecoveryStatusPending {
		challenge.Status = types.RecoveryStatusCompleted
		if err := s.recoveryRepo.Update(ctx, challenge.ChallengeID, challenge); err != nil {
			level.Error(global.Logger).Log("msg", "failed to complete recovery challenge", "error", err)
			return nil, err
		}
	}
	return &types.RecoveryStatusResult{
		ChallengeID: challenge.ChallengeID,
		Status:      challenge.Status,
		Approvals:   count,
		Threshold:   challenge.Threshold,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

func (s *RecoveryService) getChallenge(ctx context.Context, challengeID string) (*types.RecoveryChallengeDB, error) {
	resp, err := s.recoveryRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	var challenge types.RecoveryChallengeDB
	if mErr := repository.MapToObject(resp, &challenge); mErr != nil {
		return nil, mErr
	}
	return &challenge, nil
}

func (s *RecoveryService) getApproval(ctx context.Context, token string) (*types.GuardianApprovalDB, error) {
	resp, err := s.approvalRepo.GetByID(ctx, token)
	if err != nil {
		return nil, err
	}
	var approval types.GuardianApprovalDB
	if mErr := repository.MapToObject(resp, &approval); mErr != nil {
		return nil, mErr
	}
	return &approval, nil
}

func (s *RecoveryService) listApprovals(ctx context.Context, challenge *types.RecoveryChallengeDB) ([]*types.GuardianApprovalDB, error) {
	approvals := make([]*types.GuardianApprovalDB, 0, len(challenge.Tokens))
	for _, token := range challenge.Tokens {
		approval, err := s.getApproval(ctx, token)
		if err != nil {
			if err == types.ErrNotFound {
				continue
			}
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, nil
}

// verifyDeviceFactorProof checks a TOTP code or a backup code against the
// guardian registered on the account.
func (s *RecoveryService) verifyDeviceFactorProof(userID, guardianID, proof string) bool {
	if proof == "" {
		return false
	}
	user, uErr := s.userService.GetUser(userID)
	if uErr != nil {
		return false
	}
	for _, g := range user.Guardians {
		if g.GuardianID != guardianID || g.Type != types.GuardianTypeDeviceFactor {
			continue
		}
		if g.TotpSecret != "" && totp.Verify(proof, g.TotpSecret, time.Now()) {
			return true
		}
		for i, hash := range g.BackupCodeHashes {
			if util.CheckBackupCode(proof, userID, hash) {
				// burn the backup code
				g.BackupCodeHashes = append(g.BackupCodeHashes[:i], g.BackupCodeHashes[i+1:]...)
				user.Guardians[indexOfGuardian(user.Guardians, guardianID)] = g
				if err := s.userService.SaveUser(user); err != nil {
					level.Error(global.Logger).Log("msg", "failed to burn backup code", "error", err)
				}
				return true
			}
		}
	}
	return false
}

func indexOfGuardian(guardians []types.Guardian, guardianID string) int {
	for i, g := range guardians {
		if g.GuardianID == guardianID {
			return i
		}
	}
	return 0
}

// mintContextToken signs the recovery session claims with the server key.
func (s *RecoveryService) mintContextToken(challengeID, userID string, expiresAt int64) (string, error) {
	tok, err := jwt.NewBuilder().
		Issuer(contextTokenIssuer).
		Subject(userID).
		JwtID(uuid.NewString()).
		Claim("challengeId", challengeID).
		IssuedAt(time.Now().UTC()).
		Expiration(time.UnixMilli(expiresAt).UTC()).
		Build()
	if err != nil {
		return "", err
	}
	signed, sErr := jwt.Sign(tok, jwt.WithKey(jwa.EdDSA, global.PrivateKey))
	if sErr != nil {
		return "", sErr
	}
	return string(signed), nil
}

func (s *RecoveryService) verifyContextToken(token string) (challengeID, userID, jti string, err error) {
	parsed, pErr := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.EdDSA, global.PublicKey),
		jwt.WithIssuer(contextTokenIssuer),
		jwt.WithValidate(true),
	)
	if pErr != nil {
		return "", "", "", types.ErrBadRequest
	}
	cid, ok := parsed.Get("challengeId")
	if !ok {
		return "", "", "", types.ErrBadRequest
	}
	challengeID, ok = cid.(string)
	if !ok || challengeID == "" {
		return "", "", "", types.ErrBadRequest
	}
	return challengeID, parsed.Subject(), parsed.JwtID(), nil
}
