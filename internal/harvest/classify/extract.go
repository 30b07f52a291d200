package classify

import (
	"regexp"
	"strings"

	"alert-harvest/internal/harvest/model"
)

// Extractor refines the default title, text and tags of a message already
// labelled with the extractor's alert type.
type Extractor func(env Envelope, msg *model.ClassifiedMessage)

// FieldPattern pulls one labelled value out of message text. When several
// patterns share a Field, the first that matches wins.
type FieldPattern struct {
	Field   string
	Pattern *regexp.Regexp
}

var extractors = map[model.AlertType]Extractor{
	model.Grafana:    extractGrafana,
	model.NewRelic:   extractNewRelic,
	model.Cloudwatch: extractCloudwatch,
}

var fieldPatterns = map[model.AlertType][]FieldPattern{
	model.NewRelic: {
		{Field: "condition_id", Pattern: regexp.MustCompile(`conditions/(\d+)/edit`)},
		{Field: "policy_id", Pattern: regexp.MustCompile(`policies/(\d+)`)},
		{Field: "incident_id", Pattern: regexp.MustCompile(`incidents/(\d+)`)},
		{Field: "issue_id", Pattern: regexp.MustCompile(`issues/([0-9a-fA-F\-]+)`)},
	},
	model.Cloudwatch: {
		{Field: "Name", Pattern: regexp.MustCompile(`-\s*Name:\s*(.*)`)},
		{Field: "Name", Pattern: regexp.MustCompile(`-\s*Pulse:\s*(.*)`)},
		{Field: "MetricName", Pattern: regexp.MustCompile(`-\s*MetricName:\s*(.*)`)},
		{Field: "State Change", Pattern: regexp.MustCompile(`-\s*State Change:\s*(.*)`)},
		{Field: "Reason for State Change", Pattern: regexp.MustCompile(`-\s*Reason for State Change:\s*(.*)`)},
		{Field: "Timestamp", Pattern: regexp.MustCompile(`-\s*Timestamp:\s*(.*)`)},
		{Field: "AWS Account", Pattern: regexp.MustCompile(`-\s*AWS Account:\s*(.*)`)},
		{Field: "Alarm Arn", Pattern: regexp.MustCompile(`-\s*Alarm Arn:\s*(.*)`)},
		{Field: "Alarm", Pattern: regexp.MustCompile(`Alarm:\s*([^\s]+)`)},
	},
}

// NoAlarmName is the Cloudwatch title used when no alarm identifier is found.
const NoAlarmName = "No Alarm Name found"

// Message parses, classifies and enriches one raw message.
func Message(raw model.RawMessage) model.ClassifiedMessage {
	env := Parse(raw.Payload)
	return Enrich(raw, env, Classify(env))
}

// Enrich fills the default title and text, then applies the extractor
// registered for alertType, if any.
func Enrich(raw model.RawMessage, env Envelope, alertType model.AlertType) model.ClassifiedMessage {
	msg := model.ClassifiedMessage{
		RawMessage: raw,
		AlertType:  alertType,
		Title:      defaultTitle(env),
		Text:       defaultText(env),
	}
	ts := raw.ID
	if ts == "" {
		ts = env.TS
	}
	if t, err := model.ParseTS(ts); err == nil {
		msg.Timestamp = t
	}
	if extract, ok := extractors[alertType]; ok {
		extract(env, &msg)
	}
	return msg
}

// matchFields applies the patterns registered for alertType to text.
func matchFields(alertType model.AlertType, text string) map[string]string {
	tags := map[string]string{}
	for _, fp := range fieldPatterns[alertType] {
		if _, done := tags[fp.Field]; done {
			continue
		}
		if m := fp.Pattern.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				tags[fp.Field] = v
			}
		}
	}
	return tags
}

func extractGrafana(_ Envelope, msg *model.ClassifiedMessage) {
	status := "Alerting"
	switch {
	case strings.HasPrefix(msg.Title, "[Alerting]"):
		msg.Title = strings.TrimSpace(strings.TrimPrefix(msg.Title, "[Alerting]"))
	case strings.HasPrefix(msg.Title, "[OK]"):
		status = "OK"
		msg.Title = strings.TrimSpace(strings.TrimPrefix(msg.Title, "[OK]"))
	}
	msg.Tags = map[string]string{"status": status}
}

func extractNewRelic(env Envelope, msg *model.ClassifiedMessage) {
	tags := matchFields(model.NewRelic, env.Serialized)
	msg.Tags = tags

	switch {
	case tags["condition_id"] != "":
		msg.Title = "Condition ID: " + tags["condition_id"]
	case tags["issue_id"] != "":
		msg.Title = "Issue ID: " + tags["issue_id"]
	case tags["incident_id"] != "":
		msg.Title = "Incident ID: " + tags["incident_id"]
	case tags["policy_id"] != "":
		msg.Title = "Policy ID: " + tags["policy_id"]
	default:
		msg.Title = msg.Text
	}
}

func extractCloudwatch(env Envelope, msg *model.ClassifiedMessage) {
	var fileTexts []string
	for _, f := range env.Files {
		fileTexts = append(fileTexts, f.PlainText, f.PreviewPlainText)
	}
	if text := longest(fileTexts...); text != "" {
		msg.Text = text
	}

	tags := matchFields(model.Cloudwatch, msg.Text)
	for _, a := range env.Attachments {
		for _, f := range a.Fields {
			tags[f.Title] = f.Value
		}
	}
	msg.Tags = tags

	switch {
	case tags["Alarm Arn"] != "":
		msg.Title = tags["Alarm Arn"]
	case tags["Name"] != "":
		msg.Title = tags["Name"]
	case tags["Alarm"] != "":
		msg.Title = tags["Alarm"]
	default:
		msg.Title = NoAlarmName
	}
}

func defaultTitle(env Envelope) string {
	candidates := []string{env.Title}
	for _, a := range env.Attachments {
		candidates = append(candidates, a.Title)
	}
	return longest(candidates...)
}

func defaultText(env Envelope) string {
	candidates := []string{env.Text, env.Fallback}
	for _, a := range env.Attachments {
		candidates = append(candidates, a.Text, a.Fallback)
	}
	return longest(candidates...)
}

// longest returns the longest candidate; ties go to the earliest.
func longest(candidates ...string) string {
	var out string
	for _, c := range candidates {
		if len(c) > len(out) {
			out = c
		}
	}
	return out
}
