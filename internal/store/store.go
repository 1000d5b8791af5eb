// Package store persists device readings and schedule entries in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/engine"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"
)

const (
	readingsCollection  = "readings"
	schedulesCollection = "schedules"
)

// ErrNotFound indicates the requested schedule entry does not exist.
var ErrNotFound = errors.New("schedule not found")

// Error wraps a database failure with the operation that caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	SeedFile string `mapstructure:"seedFile"`
}

// Store gives access to the readings and schedules collections.
type Store struct {
	client   *mongo.Client
	database string
	logger   *slog.Logger
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, &Error{Op: "ping", Err: err}
	}
	return &Store{client: client, database: cfg.Database, logger: logger}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) readings() *mongo.Collection {
	return s.client.Database(s.database).Collection(readingsCollection)
}

func (s *Store) schedules() *mongo.Collection {
	return s.client.Database(s.database).Collection(schedulesCollection)
}

// InsertReading appends one device reading. Readings are never updated.
func (s *Store) InsertReading(ctx context.Context, reading model.DeviceReading) error {
	if _, err := s.readings().InsertOne(ctx, reading); err != nil {
		return &Error{Op: "insert reading", Err: err}
	}
	return nil
}

// Readings reports the readings for the given duration, bucketed per
// readingsPipeline. Unknown durations fall back to the last hour.
func (s *Store) Readings(ctx context.Context, duration string) ([]model.ReadingAggregate, error) {
	cursor, err := s.readings().Aggregate(ctx, readingsPipeline(duration, time.Now().UTC()))
	if err != nil {
		return nil, &Error{Op: "aggregate readings", Err: err}
	}
	defer func() { _ = cursor.Close(ctx) }()

	var results []model.ReadingAggregate
	if err = cursor.All(ctx, &results); err != nil {
		return nil, &Error{Op: "decode readings", Err: err}
	}
	return results, nil
}

// CurrentReadings reports each device's last reading from the past hour.
func (s *Store) CurrentReadings(ctx context.Context) ([]model.DeviceReading, error) {
	pipeline := mongo.Pipeline{
		matchSince(time.Now().UTC().Add(-time.Hour)),
		{{Key: "$group", Value: lastPerField(bson.D{{Key: "_id", Value: "$device"}, {Key: "time", Value: bson.D{{Key: "$last", Value: "$time"}}}})}},
	}
	cursor, err := s.readings().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &Error{Op: "aggregate current readings", Err: err}
	}
	defer func() { _ = cursor.Close(ctx) }()

	var results []model.DeviceReading
	if err = cursor.All(ctx, &results); err != nil {
		return nil, &Error{Op: "decode current readings", Err: err}
	}
	return results, nil
}

// readingsPipeline builds the aggregation for one reporting duration. Hour
// and day durations return raw readings; longer durations group them into
// time buckets, keeping the last reading per bucket.
func readingsPipeline(duration string, now time.Time) mongo.Pipeline {
	switch strings.ToLower(duration) {
	case "year":
		return mongo.Pipeline{
			{{Key: "$addFields", Value: bson.D{{Key: "Month", Value: bson.D{{Key: "$month", Value: "$time"}}}}}},
			matchSince(now.AddDate(-1, 0, 0)),
			{{Key: "$group", Value: lastPerField(bson.D{{Key: "_id", Value: "$Month"}})}},
			sortByID(),
		}
	case "month":
		return mongo.Pipeline{
			{{Key: "$addFields", Value: bson.D{{Key: "Day", Value: bson.D{{Key: "$dayOfMonth", Value: "$time"}}}}}},
			matchSince(now.AddDate(0, -1, 0)),
			{{Key: "$group", Value: lastPerField(bson.D{{Key: "_id", Value: "$Day"}})}},
			sortByID(),
		}
	case "week":
		return mongo.Pipeline{
			{{Key: "$addFields", Value: bson.D{
				{Key: "Day", Value: bson.D{{Key: "$dayOfMonth", Value: "$time"}}},
				{Key: "Hour", Value: bson.D{{Key: "$hour", Value: "$time"}}},
			}}},
			matchSince(now.AddDate(0, 0, -7)),
			{{Key: "$group", Value: lastPerField(bson.D{{Key: "_id", Value: bson.D{{Key: "Day", Value: "$Day"}, {Key: "Hour", Value: "$Hour"}}}})}},
			sortByID(),
		}
	case "day":
		return mongo.Pipeline{matchSince(now.AddDate(0, 0, -1)), sortByID()}
	default:
		return mongo.Pipeline{matchSince(now.Add(-time.Hour)), sortByID()}
	}
}

func matchSince(cutoff time.Time) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{{Key: "time", Value: bson.D{{Key: "$gt", Value: cutoff}}}}}}
}

func sortByID() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}}
}

// lastPerField extends a $group stage with a $last accumulator for every
// reading field.
func lastPerField(group bson.D) bson.D {
	for _, field := range []string{"device", "location", "temperature", "humidity", "connectivity", "mode", "ecoMode", "setPoint", "hvac"} {
		group = append(group, bson.E{Key: field, Value: bson.D{{Key: "$last", Value: "$" + field}}})
	}
	return group
}

// ListSchedules returns all schedule entries, master record included.
func (s *Store) ListSchedules(ctx context.Context) ([]model.ScheduleEntry, error) {
	cursor, err := s.schedules().Find(ctx, bson.D{})
	if err != nil {
		return nil, &Error{Op: "list schedules", Err: err}
	}
	defer func() { _ = cursor.Close(ctx) }()

	var entries []model.ScheduleEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, &Error{Op: "decode schedules", Err: err}
	}
	return entries, nil
}

// GetSchedule returns the entry with the given schedule number.
func (s *Store) GetSchedule(ctx context.Context, scheduleNumber int) (model.ScheduleEntry, error) {
	var entry model.ScheduleEntry
	err := s.schedules().FindOne(ctx, bson.D{{Key: "schedule", Value: scheduleNumber}}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ScheduleEntry{}, fmt.Errorf("schedule %d: %w", scheduleNumber, ErrNotFound)
	}
	if err != nil {
		return model.ScheduleEntry{}, &Error{Op: "get schedule", Err: err}
	}
	return entry, nil
}

// SaveSchedule merges the update into the stored entry and writes it back,
// creating the entry if it does not exist. It returns the saved entry.
func (s *Store) SaveSchedule(ctx context.Context, scheduleNumber int, update model.ScheduleUpdate) (model.ScheduleEntry, error) {
	entry, err := s.GetSchedule(ctx, scheduleNumber)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.ScheduleEntry{}, err
	}
	entry.ScheduleNumber = scheduleNumber
	entry = update.Apply(entry)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var saved model.ScheduleEntry
	err = s.schedules().FindOneAndUpdate(ctx,
		bson.D{{Key: "schedule", Value: scheduleNumber}},
		bson.D{{Key: "$set", Value: entry}},
		opts,
	).Decode(&saved)
	if err != nil {
		return model.ScheduleEntry{}, &Error{Op: "save schedule", Err: err}
	}
	s.logger.Info("schedule saved", slog.Int("schedule", scheduleNumber), slog.String("name", saved.Name))
	return saved, nil
}

// Master returns the master record's eco mode flag and day/night set-points.
func (s *Store) Master(ctx context.Context) (engine.Master, error) {
	entry, err := s.GetSchedule(ctx, model.MasterScheduleNumber)
	if err != nil {
		return engine.Master{}, err
	}
	if entry.DayTemp == nil || entry.NightTemp == nil {
		return engine.Master{}, fmt.Errorf("master record is missing day/night temperatures: %w", ErrNotFound)
	}
	return engine.Master{
		EcoMode:   entry.EcoMode,
		DayTemp:   *entry.DayTemp,
		NightTemp: *entry.NightTemp,
	}, nil
}

// SetMasterEcoMode updates the master record's eco mode flag.
func (s *Store) SetMasterEcoMode(ctx context.Context, ecoMode bool) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.schedules().FindOneAndUpdate(ctx,
		bson.D{{Key: "schedule", Value: model.MasterScheduleNumber}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "ecoMode", Value: ecoMode}}}},
		opts,
	).Err()
	if err != nil {
		return &Error{Op: "set master eco mode", Err: err}
	}
	s.logger.Info("master eco mode saved", slog.Bool("ecoMode", ecoMode))
	return nil
}

// Seed loads the configured seed file into the schedules collection. It is a
// no-op when no seed file is configured or the collection already has
// entries.
func (s *Store) Seed(ctx context.Context, seedFile string) error {
	if seedFile == "" {
		return nil
	}
	count, err := s.schedules().CountDocuments(ctx, bson.D{})
	if err != nil {
		return &Error{Op: "count schedules", Err: err}
	}
	if count > 0 {
		s.logger.Debug("schedules already provisioned, skipping seed")
		return nil
	}

	content, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var entries []model.ScheduleEntry
	if err = yaml.Unmarshal(content, &entries); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]any, len(entries))
	for i, entry := range entries {
		docs[i] = entry
	}
	if _, err = s.schedules().InsertMany(ctx, docs); err != nil {
		return &Error{Op: "seed schedules", Err: err}
	}
	s.logger.Info("schedules seeded", slog.Int("count", len(entries)))
	return nil
}
