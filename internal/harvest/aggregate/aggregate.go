// Package aggregate rolls classified messages up into per-day alert counts.
package aggregate

import (
	"sort"
	"time"

	"alert-harvest/internal/harvest/classify"
	"alert-harvest/internal/harvest/model"
)

type Options struct {
	// Months keeps only messages within this many months of the newest
	// message. Zero keeps everything.
	Months int
}

// Report is the classification and aggregation result for one channel.
// Alerts holds the messages behind Counts.
type Report struct {
	Messages []model.ClassifiedMessage
	Alerts   []model.ClassifiedMessage
	Counts   []model.DailyAlertCount
}

// Analyze classifies and enriches every raw message, then aggregates them.
func Analyze(channelID string, raw []model.RawMessage, opts Options) Report {
	msgs := make([]model.ClassifiedMessage, 0, len(raw))
	for _, r := range raw {
		msgs = append(msgs, classify.Message(r))
	}
	alerts := Counted(msgs, opts)
	return Report{
		Messages: msgs,
		Alerts:   alerts,
		Counts:   group(alerts, channelID),
	}
}

type groupKey struct {
	day       time.Time
	alertType model.AlertType
}

// Aggregate counts alerts per UTC day and alert type for channelID.
func Aggregate(msgs []model.ClassifiedMessage, channelID string, opts Options) []model.DailyAlertCount {
	return group(Counted(msgs, opts), channelID)
}

// Counted returns the messages Aggregate counts. Messages labelled
// not-an-alert are dropped before duplicate ids are collapsed to their first
// occurrence. Messages without a parseable timestamp are skipped.
func Counted(msgs []model.ClassifiedMessage, opts Options) []model.ClassifiedMessage {
	seen := make(map[string]struct{}, len(msgs))
	var kept []model.ClassifiedMessage
	for _, m := range msgs {
		if m.AlertType == model.NotAnAlert || m.Timestamp.IsZero() {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		kept = append(kept, m)
	}

	if opts.Months > 0 && len(kept) > 0 {
		kept = withinMonths(kept, opts.Months)
	}
	return kept
}

func group(alerts []model.ClassifiedMessage, channelID string) []model.DailyAlertCount {
	counts := make(map[groupKey]int)
	for _, m := range alerts {
		counts[groupKey{day: model.DayOf(m.Timestamp), alertType: m.AlertType}]++
	}

	out := make([]model.DailyAlertCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.DailyAlertCount{
			Day:       k.day,
			ChannelID: channelID,
			AlertType: k.alertType,
			Count:     n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].AlertType < out[j].AlertType
	})
	return out
}

func withinMonths(msgs []model.ClassifiedMessage, months int) []model.ClassifiedMessage {
	newest := msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
	}
	cutoff := newest.AddDate(0, -months, 0)

	out := msgs[:0:0]
	for _, m := range msgs {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
