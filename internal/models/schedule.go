package models

import "time"

// DefaultWorkerGroup is assigned to commands whose schedule left the worker
// group empty.
const DefaultWorkerGroup = "default"

// Schedule binds a cron recurrence rule to one process definition. All fields
// except ReleaseState are immutable once the schedule is materialized into
// fire events.
type Schedule struct {
	ID                    int             `json:"id"`
	ProjectCode           int64           `json:"project_code"`
	ProcessDefinitionCode int64           `json:"process_definition_code"`
	Crontab               string          `json:"crontab"`
	TimezoneID            string          `json:"timezone_id"`
	ReleaseState          ReleaseState    `json:"release_state"`
	WorkerGroup           string          `json:"worker_group"`
	EnvironmentCode       int64           `json:"environment_code"`
	WarningGroupID        int             `json:"warning_group_id"`
	WarningType           WarningType     `json:"warning_type"`
	FailureStrategy       FailureStrategy `json:"failure_strategy"`
	Priority              Priority        `json:"priority"`
	UserID                int             `json:"user_id"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ProcessDefinition is the workflow template a schedule fires against.
// ReleaseState and ScheduleReleaseState are tracked separately; alerts for a
// definition are only actionable when both are ONLINE. Description is
// repurposed in this deployment as an impact annotation
// ("affect-data:tbl_a,tbl_b").
type ProcessDefinition struct {
	Code                 int64        `json:"code"`
	Name                 string       `json:"name"`
	Version              int          `json:"version"`
	ProjectCode          int64        `json:"project_code"`
	ReleaseState         ReleaseState `json:"release_state"`
	ScheduleReleaseState ReleaseState `json:"schedule_release_state"`
	Description          string       `json:"description"`
	UserID               int          `json:"user_id"`
}

// User is the slice of the external user store this core reads.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// ProcessInstance is the slice of a concrete execution this core reads to
// recover the executor identity for failure alerts.
type ProcessInstance struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	ExecutorID   int    `json:"executor_id"`
	ExecutorName string `json:"executor_name"`
	Host         string `json:"host"`
	State        string `json:"state"`
}
