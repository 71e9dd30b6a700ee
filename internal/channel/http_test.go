package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-orchestrator/internal/models"
)

func newTestHTTPChannel() (*HTTPChannel, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	log := logrus.New()
	log.SetOutput(io.Discard)
	ch := NewHTTPChannel(log)
	ch.client = &http.Client{Transport: transport}
	return ch, transport
}

func TestProcessPostsRawContent(t *testing.T) {
	ch, transport := newTestHTTPChannel()

	var gotBody string
	transport.RegisterResponder(http.MethodPost, "http://alerts.example.com/hook",
		func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			gotBody = string(b)
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	info := models.AlertInfo{
		Data: models.AlertData{
			Title:   "timeout warn",
			Content: `[{"processId":7,"processName":"etl_daily","projectName":"ehome_etl"}]`,
		},
		Params: map[string]string{
			ParamURL:          "http://alerts.example.com/hook",
			ParamRequestType:  "POST",
			ParamHeaderParams: `{"Authorization":"Bearer tok"}`,
		},
	}
	res := ch.Process(context.Background(), info)

	assert.Equal(t, "true", res.Status, res.Message)
	assert.JSONEq(t, info.Data.Content, gotBody)
}

func TestProcessTimeoutAlertRoutedSeverity(t *testing.T) {
	ch, transport := newTestHTTPChannel()

	var payload routedPayload
	transport.RegisterResponder(http.MethodPost, "http://alerts.example.com/hook",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			return httpmock.NewStringResponse(http.StatusOK, "accepted"), nil
		})

	info := models.AlertInfo{
		Data: models.AlertData{
			Title:       "workflow timeout",
			Content:     `[{"processId":7,"processName":"etl_S_daily","projectName":"ehome_etl"}]`,
			AlertType:   models.AlertProcessInstanceTimeout,
			User:        "alice",
			NeedAlert:   true,
			ProcessDesc: "affect-data:dws_orders,dim_user",
		},
		Params: map[string]string{
			ParamURL:          "http://alerts.example.com/hook",
			ParamContentField: "unit-alert:alice:oncall-a,*:oncall-default",
		},
	}
	res := ch.Process(context.Background(), info)

	require.Equal(t, "true", res.Status, res.Message)
	require.Len(t, payload.Alerts, 1)
	assert.Equal(t, "P0", payload.Alerts[0].Labels.Severity)
	assert.Equal(t, "oncall-a", payload.Alerts[0].Labels.Handler)
	assert.Equal(t, []string{"dws_orders", "dim_user"}, payload.Alerts[0].Labels.RelTables)
	assert.Contains(t, payload.Alerts[0].Annotations["description"], "ehome_etl")
}

func TestProcessFaultToleranceMasterIsP1(t *testing.T) {
	ch, transport := newTestHTTPChannel()

	var payload routedPayload
	transport.RegisterResponder(http.MethodPost, "http://alerts.example.com/hook",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	info := models.AlertInfo{
		Data: models.AlertData{
			Title:     "fault tolerance warning",
			Content:   `[{"type":"MASTER","host":"10.0.0.8:5678"}]`,
			AlertType: models.AlertFaultTolerance,
		},
		Params: map[string]string{
			ParamURL:          "http://alerts.example.com/hook",
			ParamContentField: "unit-alert:*:oncall-default",
		},
	}
	res := ch.Process(context.Background(), info)

	require.Equal(t, "true", res.Status, res.Message)
	require.Len(t, payload.Alerts, 1)
	assert.Equal(t, "P1", payload.Alerts[0].Labels.Severity)
	assert.Contains(t, payload.Alerts[0].Annotations["description"], "10.0.0.8:5678")
	assert.Equal(t, "oncall-default", payload.Alerts[0].Receiver)
}

func TestProcessNon2xxReportsFailure(t *testing.T) {
	ch, transport := newTestHTTPChannel()
	transport.RegisterResponder(http.MethodPost, "http://alerts.example.com/hook",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	res := ch.Process(context.Background(), models.AlertInfo{
		Data:   models.AlertData{Content: "[]"},
		Params: map[string]string{ParamURL: "http://alerts.example.com/hook"},
	})

	assert.Equal(t, "false", res.Status)
	assert.Contains(t, res.Message, "502")
}

func TestProcessMissingURL(t *testing.T) {
	ch, _ := newTestHTTPChannel()

	res := ch.Process(context.Background(), models.AlertInfo{Params: map[string]string{}})
	assert.Equal(t, "false", res.Status)

	res = ch.Process(context.Background(), models.AlertInfo{})
	assert.Equal(t, "false", res.Status)
}

func TestSeverityForProcess(t *testing.T) {
	assert.Equal(t, "P0", severityForProcess("ods_S_billing"))
	assert.Equal(t, "P1", severityForProcess("dwd_A_clicks"))
	assert.Equal(t, "P2", severityForProcess("dim_B_geo"))
	assert.Equal(t, "P2", severityForProcess("adhoc_backfill"))
}

func TestRosterLookup(t *testing.T) {
	roster := "alice:oncall-a,bob:oncall-b,*:fallback"
	assert.Equal(t, "oncall-b", rosterLookup(roster, "bob"))
	assert.Equal(t, "fallback", rosterLookup(roster, "carol"))
	assert.Equal(t, "fallback", rosterLookup(roster, ""))
	assert.Equal(t, "", rosterLookup("", "alice"))
}

func TestCloseAlertIsNoOp(t *testing.T) {
	ch, _ := newTestHTTPChannel()
	res := ch.CloseAlert(context.Background(), models.AlertInfo{})
	assert.True(t, res.Succeeded())
}
