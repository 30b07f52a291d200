package model

import "time"

// AlertType is the label the classifier assigns to a harvested message.
type AlertType string

const (
	NotAnAlert  AlertType = "not an alert"
	Custom      AlertType = "custom"
	Cloudwatch  AlertType = "Cloudwatch"
	Honeybadger AlertType = "Honeybadger"
	NewRelic    AlertType = "New Relic"
	Datadog     AlertType = "Datadog"
	DrDroid     AlertType = "DrDroid"
	Sentry      AlertType = "Sentry"
	Grafana     AlertType = "Grafana"
)

// RawMessage is one channel-history message as fetched. ID is the Slack ts token.
type RawMessage struct {
	ID      string         `bson:"id" json:"id"`
	Payload map[string]any `bson:"payload" json:"payload"`
}

// ClassifiedMessage is a RawMessage enriched by the classifier and tag extractors.
type ClassifiedMessage struct {
	RawMessage `bson:",inline"`

	AlertType AlertType         `bson:"alert_type" json:"alert_type"`
	Title     string            `bson:"title" json:"title"`
	Text      string            `bson:"text" json:"text"`
	Tags      map[string]string `bson:"tags,omitempty" json:"tags,omitempty"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"` // parsed from ID, UTC
}
