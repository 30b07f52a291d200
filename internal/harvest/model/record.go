package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExtractedRecord is the sink row written for every surviving raw message.
type ExtractedRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID   string             `bson:"channel_id" json:"channel_id"`
	DataUUID    string             `bson:"data_uuid" json:"data_uuid"`
	Data        map[string]any     `bson:"data" json:"data"`
	ExtractedAt time.Time          `bson:"extracted_at" json:"extracted_at"`
}

// DailyAlertCount is the number of alerts of one type seen in a channel on one UTC day.
type DailyAlertCount struct {
	Day       time.Time `bson:"day" json:"day"`
	ChannelID string    `bson:"channel_id" json:"channel_id"`
	AlertType AlertType `bson:"alert_type" json:"alert_type"`
	Count     int       `bson:"count" json:"count"`
}

// AlertOccurrence places one counted message on its UTC day and alert type.
// Daily counts are rebuilt from these rows, keyed by (channel_id, data_uuid).
type AlertOccurrence struct {
	ChannelID string    `bson:"channel_id" json:"channel_id"`
	DataUUID  string    `bson:"data_uuid" json:"data_uuid"`
	Day       time.Time `bson:"day" json:"day"`
	AlertType AlertType `bson:"alert_type" json:"alert_type"`
}

// DayOf truncates t to the start of its UTC day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Channel is a registered channel the worker harvests.
type Channel struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID string             `bson:"channel_id" json:"channel_id"`
	Name      string             `bson:"name" json:"name"`
	TeamID    string             `bson:"team_id" json:"team_id"`
	Enabled   bool               `bson:"enabled" json:"enabled"`
}
