package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-harvest/internal/harvest/model"
)

func raw(ts string, payload map[string]any) model.RawMessage {
	payload["ts"] = ts
	return model.RawMessage{ID: ts, Payload: payload}
}

func TestMessage_GrafanaTitleStrip(t *testing.T) {
	got := Message(raw("1700000000.000100", map[string]any{
		"bot_profile": map[string]any{"name": "Grafana"},
		"attachments": []any{map[string]any{"title": "[Alerting] High CPU on host-1", "text": "cpu > 90%"}},
	}))

	assert.Equal(t, model.Grafana, got.AlertType)
	assert.Equal(t, "High CPU on host-1", got.Title)
	assert.Equal(t, map[string]string{"status": "Alerting"}, got.Tags)
	assert.Equal(t, "cpu > 90%", got.Text)
	assert.Equal(t, time.Unix(1700000000, 100000).UTC(), got.Timestamp)
}

func TestMessage_GrafanaStatus(t *testing.T) {
	tests := []struct {
		title      string
		wantTitle  string
		wantStatus string
	}{
		{"[OK] High CPU on host-1", "High CPU on host-1", "OK"},
		{"High CPU on host-1", "High CPU on host-1", "Alerting"},
		{"[Alerting]   disk full ", "disk full", "Alerting"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := Message(raw("1.0", map[string]any{"title": tt.title, "username": "grafana"}))
			require.Equal(t, model.Grafana, got.AlertType)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantStatus, got.Tags["status"])
		})
	}
}

func TestMessage_NewRelicConditionBeatsPolicy(t *testing.T) {
	got := Message(raw("2.0", map[string]any{
		"bot_profile": map[string]any{"name": "New Relic"},
		"attachments": []any{map[string]any{
			"title":      "Critical: error rate",
			"title_link": "https://one.newrelic.com/alerts/policies/4411/conditions/98765/edit",
		}},
	}))

	assert.Equal(t, model.NewRelic, got.AlertType)
	assert.Equal(t, "Condition ID: 98765", got.Title)
	assert.Equal(t, map[string]string{"condition_id": "98765", "policy_id": "4411"}, got.Tags)
}

func TestMessage_NewRelicTitlePriority(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{"issue beats incident", "https://newrelic.com/issues/ab12-cd34 https://newrelic.com/incidents/77", "Issue ID: ab12-cd34"},
		{"incident beats policy", "https://newrelic.com/policies/5 https://newrelic.com/incidents/77", "Incident ID: 77"},
		{"policy only", "https://newrelic.com/policies/5", "Policy ID: 5"},
		{"no ids falls back to text", "new relic digest", "new relic digest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Message(raw("3.0", map[string]any{"subtype": "bot_message", "text": tt.link}))
			require.Equal(t, model.NewRelic, got.AlertType)
			assert.Equal(t, tt.want, got.Title)
		})
	}
}

func TestMessage_Cloudwatch(t *testing.T) {
	body := "Alarm: HighCPU\n" +
		"- Name: cpu-alarm\n" +
		"- MetricName: CPUUtilization\n" +
		"- State Change: OK -> ALARM\n" +
		"- Reason for State Change: Threshold Crossed\n" +
		"- AWS Account: 123456789012\n"

	got := Message(raw("4.0", map[string]any{
		"bot_profile": map[string]any{"name": "AWS Chatbot"},
		"text":        "short inline",
		"files":       []any{map[string]any{"plain_text": body, "preview_plain_text": "Alarm: HighCPU"}},
		"attachments": []any{map[string]any{"fields": []any{
			map[string]any{"title": "Region", "value": "us-east-1"},
			map[string]any{"title": "MetricName", "value": "CPU"},
		}}},
	}))

	assert.Equal(t, model.Cloudwatch, got.AlertType)
	assert.Equal(t, body, got.Text)
	assert.Equal(t, "cpu-alarm", got.Title)
	assert.Equal(t, map[string]string{
		"Alarm":                   "HighCPU",
		"Name":                    "cpu-alarm",
		"MetricName":              "CPU",
		"State Change":            "OK -> ALARM",
		"Reason for State Change": "Threshold Crossed",
		"AWS Account":             "123456789012",
		"Region":                  "us-east-1",
	}, got.Tags)
}

func TestMessage_CloudwatchTitlePriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"alarm arn", "cloudwatch\n- Alarm Arn: arn:aws:cloudwatch:us-east-1:1:alarm:x\n- Name: x", "arn:aws:cloudwatch:us-east-1:1:alarm:x"},
		{"pulse fills name", "marbot\n- Pulse: api-latency", "api-latency"},
		{"alarm token", "cloudwatch Alarm: db-conn  exceeded", "db-conn"},
		{"nothing", "cloudwatch digest", NoAlarmName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Message(raw("5.0", map[string]any{"subtype": "bot_message", "text": tt.text}))
			require.Equal(t, model.Cloudwatch, got.AlertType)
			assert.Equal(t, tt.want, got.Title)
			assert.Equal(t, tt.text, got.Text)
		})
	}
}

func TestMessage_Defaults(t *testing.T) {
	got := Message(raw("6.0", map[string]any{
		"bot_profile": map[string]any{"name": "deploybot"},
		"title":       "abc",
		"text":        "four",
		"fallback":    "five5",
		"attachments": []any{
			map[string]any{"title": "xyz", "text": "ab"},
			map[string]any{"title": "longer", "fallback": "12345"},
		},
	}))

	assert.Equal(t, model.Custom, got.AlertType)
	assert.Equal(t, "longer", got.Title)
	assert.Equal(t, "five5", got.Text, "ties keep the first candidate")
	assert.Nil(t, got.Tags)
}

func TestLongest(t *testing.T) {
	assert.Equal(t, "", longest())
	assert.Equal(t, "bb", longest("a", "bb", "cc"))
}
