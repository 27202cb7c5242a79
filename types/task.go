package types

// asynq task type names
const (
	QueueTypeGuardianNotify = "recovery:guardian_notify"
)

// GuardianNotifyTask is the queue payload for one guardian notification.
type GuardianNotifyTask struct {
	ChallengeID string `json:"challengeId"`
	GuardianID  string `json:"guardianId"`
	Email       string `json:"email"`
	ApprovalURL string `json:"approvalUrl"`
	ExpiresAt   int64  `json:"expiresAt"`
}
