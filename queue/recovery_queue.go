package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/hibiken/asynq"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/types"
)

// RecoveryQueue processes guardian notification tasks. Delivery is best
// effort; a failed send is retried by asynq and surfaces to the user as the
// manual-link flow, never as a failed recovery start.
type RecoveryQueue struct {
	restyClient *resty.Client
	env         *types.Environment
}

func NewRecoveryQueue(env *types.Environment) *RecoveryQueue {
	rcClient := resty.New().SetTimeout(time.Second * 30)
	return &RecoveryQueue{
		restyClient: rcClient,
		env:         env,
	}
}

// ProcessGuardianNotifyTask posts a guardian's approval link to the outbound
// email webhook.
func (rq *RecoveryQueue) ProcessGuardianNotifyTask(ctx context.Context, t *asynq.Task) error {
	var task types.GuardianNotifyTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		level.Error(global.Logger).Log("msg", "invalid guardian notify payload", "error", err)
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if task.Email == "" {
		// nothing to deliver, guardian falls back to the manual link
		return nil
	}

	body := map[string]interface{}{
		"to":       task.Email,
		"template": "guardian-approval",
		"vars": map[string]interface{}{
			"approvalUrl": task.ApprovalURL,
			"expiresAt":   task.ExpiresAt,
		},
	}
	resp, err := rq.restyClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+global.Conf.Recovery.EmailWebhookKey).
		SetBody(body).
		Post(global.Conf.Recovery.EmailWebhookURL)
	if err != nil {
		level.Error(global.Logger).Log("msg", "guardian email send failed", "guardian", task.GuardianID, "error", err)
		return err
	}
	if resp.IsError() {
		level.Error(global.Logger).Log("msg", "guardian email rejected", "guardian", task.GuardianID, "status", resp.StatusCode())
		return fmt.Errorf("email webhook returned %d", resp.StatusCode())
	}
	level.Debug(global.Logger).Log("msg", "guardian notified", "guardian", task.GuardianID, "challenge", task.ChallengeID)
	return nil
}
