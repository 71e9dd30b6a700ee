package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert is a persisted notification request describing a workflow or task
// outcome. Created by the execution engine, consumed and terminally updated
// exactly once by the dispatch service.
type Alert struct {
	ID                    int         `json:"id"`
	EventID               string      `json:"event_id"`
	AlertGroupID          int         `json:"alert_group_id"`
	Title                 string      `json:"title"`
	Content               string      `json:"content"`
	AlertType             AlertType   `json:"alert_type"`
	WarningType           WarningType `json:"warning_type"`
	ProcessDefinitionCode int64       `json:"process_definition_code"`
	Status                AlertStatus `json:"status"`
	Log                   string      `json:"log"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// AlertEvent is one element of an alert's structured content payload.
type AlertEvent struct {
	ProcessID   int    `json:"processId"`
	ProcessName string `json:"processName"`
	ProjectName string `json:"projectName"`
	TaskName    string `json:"taskName,omitempty"`
	Host        string `json:"host,omitempty"`
	Type        string `json:"type,omitempty"`
	State       string `json:"state,omitempty"`
}

// ParseAlertContent decodes the JSON array payload carried in Alert.Content.
func ParseAlertContent(content string) ([]AlertEvent, error) {
	var events []AlertEvent
	if err := json.Unmarshal([]byte(content), &events); err != nil {
		return nil, fmt.Errorf("parse alert content: %w", err)
	}
	return events, nil
}

// AlertPluginInstance is a configured, named instance of a notification
// channel. Administrators own the configuration; this core only reads it.
type AlertPluginInstance struct {
	ID             int               `json:"id"`
	PluginDefineID int               `json:"plugin_define_id"`
	InstanceName   string            `json:"instance_name"`
	Params         map[string]string `json:"params"`
}

// WarningParamKey is the plugin-instance param holding the instance's
// warning-type filter. Absent means ALL.
const WarningParamKey = "warningType"

// AlertResult is the per-channel outcome. Status is a string "true"/"false",
// not a boolean, for backward wire compatibility with older consumers.
type AlertResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Succeeded coerces the backward-compatible status string.
func (r AlertResult) Succeeded() bool {
	return r.Status == "true"
}

// AlertData is the immutable per-alert view handed to channels: the alert
// itself plus enrichment resolved at dispatch time.
type AlertData struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Log         string      `json:"log"`
	WarnType    WarningType `json:"warnType"`
	AlertType   AlertType   `json:"alertType"`
	Phone       string      `json:"phone"`
	User        string      `json:"user"`
	NeedAlert   bool        `json:"needAlert"`
	ProcessDesc string      `json:"processDesc"`
}

// AlertInfo bundles what a channel invocation receives.
type AlertInfo struct {
	Data             AlertData
	Params           map[string]string
	PluginInstanceID int
}
