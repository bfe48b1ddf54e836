// Package mongostore keeps garden data in MongoDB collections partitioned by
// user_id. Timestamps are stored as BSON datetimes and converted only in
// toDateTime/fromDateTime.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"garden-planner/internal/model"
	"garden-planner/internal/repository"
)

const (
	collUsers     = "users"
	collPlants    = "plants"
	collTemplates = "task_templates"
	collLogs      = "task_logs"
	collJournal   = "journal_entries"
)

// Mongo error codes for Unauthorized and AuthenticationFailed.
const (
	codeUnauthorized = 13
	codeAuthFailed   = 18
)

// Store implements repository.Store on a MongoDB database.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	templates *templateCollection
	logs      *logCollection
	plants    *plantCollection
	journal   *journalCollection
	users     *userCollection
}

var _ repository.Store = (*Store)(nil)

// Connect dials uri, selects database and makes sure the per-user indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := New(client.Database(database))
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already connected database.
func New(db *mongo.Database) *Store {
	return &Store{
		client:    db.Client(),
		db:        db,
		templates: &templateCollection{coll: db.Collection(collTemplates), logs: db.Collection(collLogs)},
		logs:      &logCollection{coll: db.Collection(collLogs)},
		plants:    &plantCollection{coll: db.Collection(collPlants)},
		journal:   &journalCollection{coll: db.Collection(collJournal)},
		users:     &userCollection{coll: db.Collection(collUsers)},
	}
}

// EnsureIndexes creates the unique (user_id, id) index on every data collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	partitioned := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, name := range []string{collPlants, collTemplates, collLogs, collJournal} {
		if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, partitioned); err != nil {
			return wrap("create index on "+name, err)
		}
	}
	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "telegram_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}
	if _, err := s.db.Collection(collUsers).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return wrap("create user indexes", err)
	}
	return nil
}

func (s *Store) Templates() repository.TemplateStore { return s.templates }
func (s *Store) Logs() repository.LogStore           { return s.logs }
func (s *Store) Plants() repository.PlantStore       { return s.plants }
func (s *Store) Journal() repository.JournalStore    { return s.journal }
func (s *Store) Users() repository.UserStore         { return s.users }

func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx, readpref.Primary()))
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// toDateTime converts to the BSON temporal type. The zero time maps to 0.
func toDateTime(t time.Time) primitive.DateTime {
	if t.IsZero() {
		return 0
	}
	return primitive.NewDateTimeFromTime(t)
}

// fromDateTime converts a BSON datetime back to UTC; 0 reads as the zero time.
func fromDateTime(d primitive.DateTime) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return d.Time().UTC()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrNotFound
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && (serverErr.HasErrorCode(codeUnauthorized) || serverErr.HasErrorCode(codeAuthFailed)) {
		return fmt.Errorf("%s: %w: %v", op, model.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func byUser(userID string) bson.M {
	return bson.M{"user_id": userID}
}

func byID(userID, id string) bson.M {
	return bson.M{"user_id": userID, "id": id}
}

func exists(ctx context.Context, coll *mongo.Collection, userID, id string) (bool, error) {
	n, err := coll.CountDocuments(ctx, byID(userID, id), options.Count().SetLimit(1))
	if err != nil {
		return false, wrap("count "+coll.Name(), err)
	}
	return n > 0, nil
}

func deleteMany(ctx context.Context, coll *mongo.Collection, filter bson.M) error {
	if _, err := coll.DeleteMany(ctx, filter); err != nil {
		return wrap("delete from "+coll.Name(), err)
	}
	return nil
}

func sortBy(fields ...string) *options.FindOptions {
	sort := bson.D{}
	for _, f := range fields {
		dir := 1
		if f[0] == '-' {
			dir = -1
			f = f[1:]
		}
		sort = append(sort, bson.E{Key: f, Value: dir})
	}
	return options.Find().SetSort(sort)
}
