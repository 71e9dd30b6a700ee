package models

import "time"

// Command is a persisted request to run one concrete execution of a process
// definition at a specific time. Commands materialized from schedules are the
// unit of deduplication: no two commands may share the same
// (schedule id, schedule time) pair. That pair is enforced by a unique
// constraint at the storage layer; the upstream cron trigger is at-least-once
// and may re-fire the same tick after a restart.
type Command struct {
	ID                       int             `json:"id"`
	CommandType              CommandType     `json:"command_type"`
	ProcessDefinitionCode    int64           `json:"process_definition_code"`
	ProcessDefinitionVersion int             `json:"process_definition_version"`
	ScheduleID               int             `json:"schedule_id"`
	ExecutorID               int             `json:"executor_id"`
	ManualRun                bool            `json:"manual_run"`
	FailureStrategy          FailureStrategy `json:"failure_strategy"`
	ScheduleTime             time.Time       `json:"schedule_time"`
	StartTime                time.Time       `json:"start_time"`
	WarningGroupID           int             `json:"warning_group_id"`
	WarningType              WarningType     `json:"warning_type"`
	WorkerGroup              string          `json:"worker_group"`
	EnvironmentCode          int64           `json:"environment_code"`
	Priority                 Priority        `json:"priority"`
}
