package model

import "time"

type JobState string

const JOB_STATE_WAITING JobState = "waiting"
const JOB_STATE_ACTIVE JobState = "active"
const JOB_STATE_FAILED JobState = "failed"
const JOB_STATE_DELAYED JobState = "delayed"

const JOB_NAME_INPUT = "input"
const JOB_NAME_EVENT = "event"

// Job is one queued request to process the current action of an ActionSet.
// Data is the ActionSet snapshot taken when the job was added.
type Job struct {
	Id           string       `json:"id"`
	Name         string       `json:"name"`
	Queue        string       `json:"queue"`
	Data         RawActionSet `json:"data"`
	Progress     int          `json:"progress"`
	AttemptsMade int          `json:"attemptsMade"`
	FailedReason string       `json:"failedReason,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	// ActivatedAt is set when the job is polled, RetryAt when it is delayed.
	ActivatedAt time.Time `json:"activatedAt"`
	RetryAt     time.Time `json:"retryAt"`
}

type User struct {
	Id string `json:"id"`
}

const RIGHTS_ENTITY_ACTION_SET = "actionset"
const RIGHT_OWNER = "owner"

type RightDef struct {
	Entity      string          `json:"entity"`
	EntityValue string          `json:"entityValue"`
	Rights      map[string]bool `json:"rights"`
}
