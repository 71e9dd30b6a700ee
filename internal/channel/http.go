// Package channel holds the concrete notification channel implementations
// selected by plugin-definition id. Each channel is a black box behind the
// alert.Channel contract: it reports its outcome in the result and never
// fails the dispatch core.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
)

// Plugin definition ids the channel registry is wired with.
const (
	PluginDefineHTTP     = 1
	PluginDefineShoutrrr = 2
)

// HTTP channel instance params.
const (
	ParamURL          = "url"
	ParamRequestType  = "requestType"
	ParamHeaderParams = "headerParams"
	ParamContentField = "contentField"
	ParamTimeout      = "timeout"
	ParamCluster      = "cluster"

	// routingTag in the contentField switches the channel from raw forwarding
	// to client-side routed formatting. The text after the tag is the on-call
	// roster: "executor:assignee,...,*:fallback".
	routingTag = "unit-alert"
	// impactTag prefixes a process description repurposed as an impact
	// annotation: "affect-data:tbl_a,tbl_b".
	impactTag = "affect-data"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPChannel posts alerts to a configured endpoint. When the instance's
// contentField carries the routing tag it derives severity and on-call
// assignee from the workflow name and the roster before sending an
// alertmanager-shaped payload; otherwise it forwards the alert content as-is.
type HTTPChannel struct {
	log    *logrus.Logger
	client *http.Client
}

func NewHTTPChannel(log *logrus.Logger) *HTTPChannel {
	return &HTTPChannel{log: log, client: &http.Client{}}
}

func (c *HTTPChannel) Process(_ context.Context, info models.AlertInfo) models.AlertResult {
	if info.Params == nil {
		return models.AlertResult{Status: "false", Message: "http params is null"}
	}
	if info.Params[ParamURL] == "" {
		return models.AlertResult{Status: "false", Message: "http url is empty"}
	}

	body := info.Data.Content
	if contentField := info.Params[ParamContentField]; strings.HasPrefix(contentField, routingTag) {
		roster := strings.TrimPrefix(strings.TrimPrefix(contentField, routingTag), ":")
		payload, err := c.buildRoutedPayload(info.Data, roster, info.Params)
		if err != nil {
			return models.AlertResult{Status: "false", Message: fmt.Sprintf("build routed payload: %v", err)}
		}
		body = payload
	}
	return c.send(info.Params, body)
}

// CloseAlert has nothing to tear down on a plain HTTP endpoint.
func (c *HTTPChannel) CloseAlert(_ context.Context, _ models.AlertInfo) models.AlertResult {
	return models.AlertResult{Status: "true", Message: "no alert need to close"}
}

type routedLabels struct {
	AlertName string   `json:"alertname"`
	Handler   string   `json:"handler"`
	Severity  string   `json:"severity"`
	RelTables []string `json:"relTable,omitempty"`
	Cluster   string   `json:"cluster"`
	Group     string   `json:"group"`
	Status    string   `json:"status"`
}

type routedAlert struct {
	Annotations map[string]string `json:"annotations"`
	Labels      routedLabels      `json:"labels"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt"`
	Receiver    string            `json:"receiver"`
	Handler     string            `json:"handler"`
	Status      string            `json:"status"`
}

type routedPayload struct {
	Alerts      []routedAlert     `json:"alerts"`
	GroupLabels map[string]string `json:"groupLabels"`
	Receiver    string            `json:"receiver"`
	Status      string            `json:"status"`
}

// buildRoutedPayload derives severity and assignee for the alert and shapes
// it for an alertmanager-compatible receiver.
func (c *HTTPChannel) buildRoutedPayload(data models.AlertData, roster string, params map[string]string) (string, error) {
	severity := "P2"
	assignee := rosterLookup(roster, data.User)
	desc := ""
	var relTables []string

	switch {
	case data.AlertType == models.AlertFaultTolerance:
		events, err := models.ParseAlertContent(data.Content)
		if err != nil || len(events) == 0 {
			break
		}
		nodeType := events[0].Type
		if nodeType == "MASTER" || nodeType == "WORKER" {
			severity = "P1"
		}
		desc = fmt.Sprintf("%s service node (%s) unavailable", nodeType, events[0].Host)

	case isFailureType(data.AlertType) && data.NeedAlert:
		events, err := models.ParseAlertContent(data.Content)
		if err != nil || len(events) == 0 {
			break
		}
		severity = severityForProcess(events[0].ProcessName)
		desc = fmt.Sprintf("\n    project: %s\n    workflow: %s", events[0].ProjectName, events[0].ProcessName)
		if strings.HasPrefix(data.ProcessDesc, impactTag) {
			impact := strings.TrimPrefix(strings.TrimPrefix(data.ProcessDesc, impactTag), ":")
			if impact != "" {
				relTables = strings.Split(impact, ",")
			}
		}
	}

	cluster := params[ParamCluster]
	if cluster == "" {
		cluster = "orchestrator"
	}
	now := time.Now().Format("2006-01-02T15:04:05Z07:00")
	payload := routedPayload{
		Alerts: []routedAlert{{
			Annotations: map[string]string{
				"description": desc,
				"summary":     data.Title,
			},
			Labels: routedLabels{
				AlertName: "workflow task alert",
				Handler:   assignee,
				Severity:  severity,
				RelTables: relTables,
				Cluster:   cluster,
				Group:     cluster,
				Status:    "failed",
			},
			StartsAt: now,
			EndsAt:   now,
			Receiver: assignee,
			Handler:  assignee,
			Status:   "failed",
		}},
		GroupLabels: map[string]string{"severity": severity},
		Receiver:    assignee,
		Status:      "failed",
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	c.log.WithFields(logrus.Fields{"severity": severity, "handler": assignee}).Debug("routed alert payload built")
	return string(b), nil
}

// send issues the configured request. The call is deliberately not bound to
// the dispatch context: a send in flight at shutdown or wait-timeout expiry
// runs to completion or to its own HTTP timeout.
func (c *HTTPChannel) send(params map[string]string, body string) models.AlertResult {
	method := strings.ToUpper(params[ParamRequestType])
	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader
	url := params[ParamURL]
	if method == http.MethodGet {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "msg=" + strconv.Quote(body)
	} else {
		reqBody = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return models.AlertResult{Status: "false", Message: fmt.Sprintf("build http request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if raw := params[ParamHeaderParams]; raw != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return models.AlertResult{Status: "false", Message: fmt.Sprintf("parse header params: %v", err)}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	timeout := defaultHTTPTimeout
	if raw := params[ParamTimeout]; raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	// Per-call client so concurrent sends with different timeouts do not race.
	client := &http.Client{Transport: c.client.Transport, Timeout: timeout}

	resp, err := client.Do(req)
	if err != nil {
		return models.AlertResult{Status: "false", Message: fmt.Sprintf("send http alert: %v", err)}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.AlertResult{
			Status:  "false",
			Message: fmt.Sprintf("http alert endpoint returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return models.AlertResult{
		Status:  "true",
		Message: fmt.Sprintf("http alert sent, response: %s", string(respBody)),
	}
}

func isFailureType(t models.AlertType) bool {
	switch t {
	case models.AlertProcessInstanceFailure, models.AlertProcessInstanceTimeout, models.AlertTaskFailure:
		return true
	}
	return false
}

// severityForProcess maps the workflow naming convention's tier markers to a
// paging severity.
func severityForProcess(name string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "_S_"):
		return "P0"
	case strings.Contains(upper, "_A_"):
		return "P1"
	default:
		return "P2"
	}
}

// rosterLookup resolves the on-call assignee for an executor from a
// "executor:assignee,...,*:fallback" roster string.
func rosterLookup(roster, executor string) string {
	fallback := ""
	for _, entry := range strings.Split(roster, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == "*" {
			fallback = parts[1]
			continue
		}
		if executor != "" && parts[0] == executor {
			return parts[1]
		}
	}
	return fallback
}
