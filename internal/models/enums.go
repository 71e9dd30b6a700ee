package models

import "fmt"

// ReleaseState tracks whether a schedule or process definition is live.
type ReleaseState string

const (
	ReleaseOnline  ReleaseState = "ONLINE"
	ReleaseOffline ReleaseState = "OFFLINE"
)

// CommandType distinguishes how an execution request originated.
type CommandType string

const (
	CommandStartProcess CommandType = "START_PROCESS"
	CommandScheduler    CommandType = "SCHEDULER"
	CommandRepeatRun    CommandType = "REPEAT_RUNNING"
)

// FailureStrategy controls what happens to sibling tasks when one fails.
type FailureStrategy string

const (
	FailureStrategyEnd      FailureStrategy = "END"
	FailureStrategyContinue FailureStrategy = "CONTINUE"
)

// Priority orders process instances competing for workers.
type Priority string

const (
	PriorityHighest Priority = "HIGHEST"
	PriorityHigh    Priority = "HIGH"
	PriorityMedium  Priority = "MEDIUM"
	PriorityLow     Priority = "LOW"
	PriorityLowest  Priority = "LOWEST"
)

// WarningType filters which outcomes a channel receives.
type WarningType string

const (
	WarningAll     WarningType = "ALL"
	WarningSuccess WarningType = "SUCCESS"
	WarningFailure WarningType = "FAILURE"
	WarningNone    WarningType = "NONE"
)

// ParseWarningType maps the configured string (case-insensitive per stored
// plugin params) to a WarningType. Unknown values are an error so a
// misconfigured instance is recorded as failed rather than silently sent.
func ParseWarningType(s string) (WarningType, error) {
	switch WarningType(s) {
	case WarningAll, WarningSuccess, WarningFailure, WarningNone:
		return WarningType(s), nil
	}
	switch s {
	case "all":
		return WarningAll, nil
	case "success":
		return WarningSuccess, nil
	case "failure":
		return WarningFailure, nil
	case "none":
		return WarningNone, nil
	}
	return "", fmt.Errorf("unknown warning type %q", s)
}

// AlertType identifies the triggering event of an alert.
type AlertType string

const (
	AlertProcessInstanceFailure AlertType = "PROCESS_INSTANCE_FAILURE"
	AlertProcessInstanceTimeout AlertType = "PROCESS_INSTANCE_TIMEOUT"
	AlertProcessInstanceSuccess AlertType = "PROCESS_INSTANCE_SUCCESS"
	AlertTaskFailure            AlertType = "TASK_FAILURE"
	AlertTaskSuccess            AlertType = "TASK_SUCCESS"
	AlertTaskTimeout            AlertType = "TASK_TIMEOUT"
	AlertFaultTolerance         AlertType = "FAULT_TOLERANCE_WARNING"
	AlertClose                  AlertType = "CLOSE_ALERT"
)

// AlertStatus is the delivery lifecycle of an alert row.
type AlertStatus string

const (
	AlertWaitExecution           AlertStatus = "WAIT_EXECUTION"
	AlertExecutionSuccess        AlertStatus = "EXECUTION_SUCCESS"
	AlertExecutionPartialSuccess AlertStatus = "EXECUTION_PARTIAL_SUCCESS"
	AlertExecutionFailure        AlertStatus = "EXECUTION_FAILURE"
)
