package store

import (
	"context"
	"encoding/json"
	"fmt"

	"workflow-orchestrator/internal/models"
)

// CreateAlertParams collects inputs required to insert a pending alert.
type CreateAlertParams struct {
	EventID               string
	AlertGroupID          int
	Title                 string
	Content               string
	AlertType             models.AlertType
	WarningType           models.WarningType
	ProcessDefinitionCode int64
}

// CreateAlert inserts a pending alert, idempotent on the event id so
// at-least-once producers do not enqueue duplicates. The boolean reports
// whether a row was created.
func (s *Store) CreateAlert(ctx context.Context, p CreateAlertParams) (bool, error) {
	if p.WarningType == "" {
		p.WarningType = models.WarningAll
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (event_id, alert_group_id, title, content, alert_type,
		                    warning_type, process_definition_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, p.EventID, p.AlertGroupID, p.Title, p.Content, p.AlertType,
		p.WarningType, p.ProcessDefinitionCode, models.AlertWaitExecution)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPendingAlerts returns up to limit alerts awaiting dispatch, oldest
// first.
func (s *Store) ListPendingAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, alert_group_id, title, content, alert_type,
		       warning_type, process_definition_code, status, log, created_at, updated_at
		FROM alerts WHERE status = $1 ORDER BY id LIMIT $2
	`, models.AlertWaitExecution, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID, &a.EventID, &a.AlertGroupID, &a.Title, &a.Content, &a.AlertType,
			&a.WarningType, &a.ProcessDefinitionCode, &a.Status, &a.Log, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListInstancesByAlertGroup resolves the plugin instances bound to an alert
// group. Instance params are stored as a JSONB string map.
func (s *Store) ListInstancesByAlertGroup(ctx context.Context, alertGroupID int) ([]models.AlertPluginInstance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.plugin_define_id, i.instance_name, i.params
		FROM alert_plugin_instances i
		JOIN alert_group_bindings b ON b.plugin_instance_id = i.id
		WHERE b.alert_group_id = $1
		ORDER BY i.id
	`, alertGroupID)
	if err != nil {
		return nil, fmt.Errorf("query instances for group %d: %w", alertGroupID, err)
	}
	defer rows.Close()

	var out []models.AlertPluginInstance
	for rows.Next() {
		var inst models.AlertPluginInstance
		var params []byte
		if err := rows.Scan(&inst.ID, &inst.PluginDefineID, &inst.InstanceName, &params); err != nil {
			return nil, fmt.Errorf("scan plugin instance: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &inst.Params); err != nil {
				return nil, fmt.Errorf("decode params for instance %d: %w", inst.ID, err)
			}
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// InsertAlertSendStatus persists one per-instance delivery outcome. Results
// are written immediately as each instance is attempted, not batched.
func (s *Store) InsertAlertSendStatus(ctx context.Context, alertID, instanceID int, status models.AlertStatus, log string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_send_status (alert_id, plugin_instance_id, status, log)
		VALUES ($1, $2, $3, $4)
	`, alertID, instanceID, status, log)
	if err != nil {
		return fmt.Errorf("insert alert send status: %w", err)
	}
	return nil
}

// UpdateAlertStatus finalizes an alert with its aggregate status and the
// serialized per-instance result array.
func (s *Store) UpdateAlertStatus(ctx context.Context, alertID int, status models.AlertStatus, log string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $2, log = $3, updated_at = NOW() WHERE id = $1
	`, alertID, status, log)
	if err != nil {
		return fmt.Errorf("update alert %d: %w", alertID, err)
	}
	return nil
}
