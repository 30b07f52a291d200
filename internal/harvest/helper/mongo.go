package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alert-harvest/internal/harvest/model"
	"alert-harvest/pkg/config"
)

const (
	ChannelsColl    = "channels"
	SchedulesColl   = "extraction_schedules"
	RecordsColl     = "extracted_records"
	CountsColl      = "daily_alert_counts"
	OccurrencesColl = "alert_occurrences"
)

type Stores struct {
	DB          *mongo.Database
	Channels    *mongo.Collection // channel registry, read-only here
	Schedules   *mongo.Collection // append-only extraction log
	Records     *mongo.Collection
	Counts      *mongo.Collection
	Occurrences *mongo.Collection // one row per counted message
}

func MustMongo(ctx context.Context, cfg config.MongoConfig) *Stores {
	clientOpts := options.Client().ApplyURI("mongodb://" + cfg.Host)
	if cfg.Username != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		panic(err)
	}
	if err = cli.Ping(ctx, nil); err != nil {
		panic(err)
	}

	s := NewStores(cli.Database(cfg.DBName))
	if err := s.EnsureIndexes(ctx); err != nil {
		panic(err)
	}
	return s
}

func NewStores(db *mongo.Database) *Stores {
	return &Stores{
		DB:          db,
		Channels:    db.Collection(ChannelsColl),
		Schedules:   db.Collection(SchedulesColl),
		Records:     db.Collection(RecordsColl),
		Counts:      db.Collection(CountsColl),
		Occurrences: db.Collection(OccurrencesColl),
	}
}

func (s *Stores) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.Channels: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "enabled", Value: 1}}},
		},
		s.Schedules: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "triggered_at", Value: -1}}},
		},
		s.Records: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "data_uuid", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.Counts: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "day", Value: 1}, {Key: "alert_type", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.Occurrences: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "data_uuid", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "day", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// LatestSchedule returns the most recently triggered schedule row for the
// channel, or nil if there is none.
func (s *Stores) LatestSchedule(ctx context.Context, channelID string) (*model.ExtractionSchedule, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "triggered_at", Value: -1}})

	var out model.ExtractionSchedule
	err := s.Schedules.FindOne(ctx, bson.M{"channel_id": channelID}, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stores) AppendSchedule(ctx context.Context, sched *model.ExtractionSchedule) error {
	res, err := s.Schedules.InsertOne(ctx, sched)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		sched.ID = id
	}
	return nil
}

func (s *Stores) ListSchedules(ctx context.Context, channelID string, limit int64) ([]model.ExtractionSchedule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "triggered_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	out := []model.ExtractionSchedule{}
	if err := s.findAll(ctx, s.Schedules, bson.M{"channel_id": channelID}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRecords upserts one row per message keyed by (channel_id, data_uuid) and
// returns how many rows were new.
func (s *Stores) SaveRecords(ctx context.Context, channelID string, msgs []model.RawMessage, at time.Time) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"channel_id": channelID, "data_uuid": m.ID}).
			SetUpdate(bson.M{
				"$set":         bson.M{"data": m.Payload},
				"$setOnInsert": bson.M{"extracted_at": at.UTC()},
			}).
			SetUpsert(true))
	}

	res, err := s.Records.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("save %d records for %s: %w", len(msgs), channelID, err)
	}
	return res.UpsertedCount, nil
}

func (s *Stores) ListRecords(ctx context.Context, channelID string, page, limit int64) ([]model.ExtractedRecord, error) {
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "data_uuid", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	out := []model.ExtractedRecord{}
	if err := s.findAll(ctx, s.Records, bson.M{"channel_id": channelID}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveCounts stores one occurrence row per alert, then rebuilds the count
// rows of every day those alerts fall on from the stored occurrences. Saving
// the same alerts again leaves the counts unchanged.
func (s *Stores) SaveCounts(ctx context.Context, channelID string, alerts []model.ClassifiedMessage) error {
	if len(alerts) == 0 {
		return nil
	}

	seen := make(map[time.Time]struct{})
	days := make([]time.Time, 0)
	models := make([]mongo.WriteModel, 0, len(alerts))
	for _, a := range alerts {
		day := model.DayOf(a.Timestamp)
		if _, ok := seen[day]; !ok {
			seen[day] = struct{}{}
			days = append(days, day)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"channel_id": channelID, "data_uuid": a.ID}).
			SetUpdate(bson.M{"$set": model.AlertOccurrence{
				ChannelID: channelID,
				DataUUID:  a.ID,
				Day:       day,
				AlertType: a.AlertType,
			}}).
			SetUpsert(true))
	}
	if _, err := s.Occurrences.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("save %d alert occurrences for %s: %w", len(alerts), channelID, err)
	}

	counts, err := s.countDays(ctx, channelID, days)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	if _, err := s.Counts.BulkWrite(ctx, countModels(counts), options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("save %d daily counts: %w", len(counts), err)
	}
	return nil
}

type dayGroup struct {
	Key struct {
		Day       time.Time       `bson:"day"`
		AlertType model.AlertType `bson:"alert_type"`
	} `bson:"_id"`
	Count int `bson:"count"`
}

// countDays totals the stored occurrences of channelID on the given days.
func (s *Stores) countDays(ctx context.Context, channelID string, days []time.Time) ([]model.DailyAlertCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"channel_id": channelID, "day": bson.M{"$in": days}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "day", Value: "$day"}, {Key: "alert_type", Value: "$alert_type"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.Occurrences.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count occurrences for %s: %w", channelID, err)
	}
	defer cur.Close(ctx)

	var groups []dayGroup
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode occurrence counts for %s: %w", channelID, err)
	}
	out := make([]model.DailyAlertCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.DailyAlertCount{
			Day:       g.Key.Day.UTC(),
			ChannelID: channelID,
			AlertType: g.Key.AlertType,
			Count:     g.Count,
		})
	}
	return out, nil
}

// countModels overwrites each (channel, day, alert type) row with its total.
func countModels(counts []model.DailyAlertCount) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(counts))
	for _, c := range counts {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"channel_id": c.ChannelID, "day": c.Day, "alert_type": c.AlertType}).
			SetUpdate(bson.M{"$set": bson.M{"count": c.Count}}).
			SetUpsert(true))
	}
	return models
}

// ListCounts returns a channel's daily counts on or after since, oldest first.
// A zero since returns everything.
func (s *Stores) ListCounts(ctx context.Context, channelID string, since time.Time) ([]model.DailyAlertCount, error) {
	filter := bson.M{"channel_id": channelID}
	if !since.IsZero() {
		filter["day"] = bson.M{"$gte": since.UTC()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "day", Value: 1}, {Key: "alert_type", Value: 1}})
	out := []model.DailyAlertCount{}
	if err := s.findAll(ctx, s.Counts, filter, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Stores) EnabledChannels(ctx context.Context) ([]model.Channel, error) {
	return s.channels(ctx, bson.M{"enabled": true})
}

func (s *Stores) ListChannels(ctx context.Context) ([]model.Channel, error) {
	return s.channels(ctx, bson.M{})
}

func (s *Stores) channels(ctx context.Context, filter bson.M) ([]model.Channel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "channel_id", Value: 1}})
	out := []model.Channel{}
	if err := s.findAll(ctx, s.Channels, filter, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Stores) findAll(ctx context.Context, coll *mongo.Collection, filter any, opts *options.FindOptions, out any) error {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return nil
}
