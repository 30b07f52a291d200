package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CrawlWindow is the (Oldest, Latest] range one crawl covers. Oldest "" means
// the crawl runs back to the beginning of the channel history.
type CrawlWindow struct {
	ChannelID string `json:"channel_id"`
	Latest    string `json:"latest"`
	Oldest    string `json:"oldest,omitempty"`
}

// Empty reports whether the window cannot contain any message.
func (w CrawlWindow) Empty() bool {
	return w.Oldest != "" && CompareTS(w.Oldest, w.Latest) >= 0
}

// ExtractionSchedule is one row of the append-only per-channel schedule log.
type ExtractionSchedule struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID              string             `bson:"run_id" json:"run_id"`
	ChannelID          string             `bson:"channel_id" json:"channel_id"`
	DataExtractionFrom *time.Time         `bson:"data_extraction_from" json:"data_extraction_from"`
	DataExtractionTo   time.Time          `bson:"data_extraction_to" json:"data_extraction_to"`
	// Exact ts tokens of the window edges; the time fields above only keep
	// millisecond precision once stored.
	FromTS      string    `bson:"from_ts,omitempty" json:"from_ts,omitempty"`
	ToTS        string    `bson:"to_ts" json:"to_ts"`
	TriggeredAt time.Time `bson:"triggered_at" json:"triggered_at"`
}
