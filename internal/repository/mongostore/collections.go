package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"garden-planner/internal/model"
	"garden-planner/internal/repository"
)

func findAll[D any, M any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions, conv func(D) M) ([]M, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap("find in "+coll.Name(), err)
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode "+coll.Name(), err)
	}
	out := make([]M, 0, len(docs))
	for _, d := range docs {
		out = append(out, conv(d))
	}
	return out, nil
}

type templateCollection struct {
	coll *mongo.Collection
	logs *mongo.Collection
}

func (c *templateCollection) List(ctx context.Context, userID string, filter repository.TemplateFilter) ([]model.TaskTemplate, error) {
	q := byUser(userID)
	if filter.EnabledOnly {
		q["enabled"] = true
	}
	if filter.PlantID != "" {
		q["plant_id"] = filter.PlantID
	}
	return findAll(ctx, c.coll, q, sortBy("-created_at"), templateDoc.model)
}

func (c *templateCollection) Get(ctx context.Context, userID, id string) (*model.TaskTemplate, error) {
	var doc templateDoc
	if err := c.coll.FindOne(ctx, byID(userID, id)).Decode(&doc); err != nil {
		return nil, wrap("get template", err)
	}
	tmpl := doc.model()
	return &tmpl, nil
}

func (c *templateCollection) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, c.coll, userID, id)
}

func (c *templateCollection) Create(ctx context.Context, tmpl *model.TaskTemplate) error {
	now := time.Now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now
	if _, err := c.coll.InsertOne(ctx, templateToDoc(tmpl)); err != nil {
		return wrap("create template", err)
	}
	return nil
}

func (c *templateCollection) Update(ctx context.Context, userID, id string, patch model.TemplatePatch) error {
	set := bson.M{"updated_at": toDateTime(time.Now())}
	if patch.PlantID != nil {
		set["plant_id"] = *patch.PlantID
	}
	if patch.Kind != nil {
		set["task_type"] = string(*patch.Kind)
	}
	if patch.FrequencyDays != nil {
		set["frequency_days"] = *patch.FrequencyDays
	}
	if patch.NextDueAt != nil {
		set["next_due_at"] = toDateTime(*patch.NextDueAt)
	}
	if patch.Enabled != nil {
		set["enabled"] = *patch.Enabled
	}
	if patch.PreferredTime != nil {
		set["preferred_time"] = string(*patch.PreferredTime)
	}
	res, err := c.coll.UpdateOne(ctx, byID(userID, id), bson.M{"$set": set, "$inc": bson.M{"revision": 1}})
	if err != nil {
		return wrap("update template", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Complete swaps the template state only when the revision still matches and
// then records the log. Without a replica set there is no multi-document
// transaction, so the log insert follows the conditional update.
func (c *templateCollection) Complete(ctx context.Context, comp model.Completion) error {
	filter := byID(comp.UserID, comp.TemplateID)
	filter["revision"] = comp.ExpectRevision
	update := bson.M{
		"$set": bson.M{
			"next_due_at": toDateTime(comp.NextDueAt),
			"enabled":     comp.Enabled,
			"updated_at":  toDateTime(time.Now()),
		},
		"$inc": bson.M{"revision": 1},
	}
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return wrap("complete template", err)
	}
	if res.MatchedCount == 0 {
		found, err := exists(ctx, c.coll, comp.UserID, comp.TemplateID)
		if err != nil {
			return err
		}
		if !found {
			return model.ErrNotFound
		}
		return model.ErrConflict
	}
	if comp.Log != nil {
		if _, err := c.logs.InsertOne(ctx, logToDoc(comp.Log)); err != nil {
			return wrap("create task log", err)
		}
	}
	return nil
}

func (c *templateCollection) Delete(ctx context.Context, userID, id string) error {
	return deleteMany(ctx, c.coll, byID(userID, id))
}

func (c *templateCollection) DeleteByPlant(ctx context.Context, userID, plantID string) error {
	filter := byUser(userID)
	filter["plant_id"] = plantID
	return deleteMany(ctx, c.coll, filter)
}

func (c *templateCollection) DeleteAll(ctx context.Context, userID string) error {
	return deleteMany(ctx, c.coll, byUser(userID))
}

type logCollection struct {
	coll *mongo.Collection
}

func (c *logCollection) List(ctx context.Context, userID string) ([]model.TaskLog, error) {
	return findAll(ctx, c.coll, byUser(userID), sortBy("-done_at"), logDoc.model)
}

func (c *logCollection) ListByTemplate(ctx context.Context, userID, templateID string) ([]model.TaskLog, error) {
	filter := byUser(userID)
	filter["task_id"] = templateID
	return findAll(ctx, c.coll, filter, sortBy("-done_at"), logDoc.model)
}

func (c *logCollection) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, c.coll, userID, id)
}

func (c *logCollection) Create(ctx context.Context, entry *model.TaskLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := c.coll.InsertOne(ctx, logToDoc(entry)); err != nil {
		return wrap("create task log", err)
	}
	return nil
}

func (c *logCollection) DeleteAll(ctx context.Context, userID string) error {
	return deleteMany(ctx, c.coll, byUser(userID))
}

type plantCollection struct {
	coll *mongo.Collection
}

func (c *plantCollection) List(ctx context.Context, userID string) ([]model.Plant, error) {
	return findAll(ctx, c.coll, byUser(userID), sortBy("name"), plantDoc.model)
}

func (c *plantCollection) Get(ctx context.Context, userID, id string) (*model.Plant, error) {
	var doc plantDoc
	if err := c.coll.FindOne(ctx, byID(userID, id)).Decode(&doc); err != nil {
		return nil, wrap("get plant", err)
	}
	plant := doc.model()
	return &plant, nil
}

func (c *plantCollection) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, c.coll, userID, id)
}

func (c *plantCollection) Create(ctx context.Context, plant *model.Plant) error {
	now := time.Now().UTC()
	if plant.CreatedAt.IsZero() {
		plant.CreatedAt = now
	}
	plant.UpdatedAt = now
	if _, err := c.coll.InsertOne(ctx, plantToDoc(plant)); err != nil {
		return wrap("create plant", err)
	}
	return nil
}

func (c *plantCollection) Delete(ctx context.Context, userID, id string) error {
	return deleteMany(ctx, c.coll, byID(userID, id))
}

func (c *plantCollection) DeleteAll(ctx context.Context, userID string) error {
	return deleteMany(ctx, c.coll, byUser(userID))
}

type journalCollection struct {
	coll *mongo.Collection
}

func (c *journalCollection) List(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	return findAll(ctx, c.coll, byUser(userID), sortBy("-entry_date", "-created_at"), journalDoc.model)
}

func (c *journalCollection) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, c.coll, userID, id)
}

func (c *journalCollection) Create(ctx context.Context, entry *model.JournalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := c.coll.InsertOne(ctx, journalToDoc(entry)); err != nil {
		return wrap("create journal entry", err)
	}
	return nil
}

func (c *journalCollection) Delete(ctx context.Context, userID, id string) error {
	return deleteMany(ctx, c.coll, byID(userID, id))
}

func (c *journalCollection) DeleteAll(ctx context.Context, userID string) error {
	return deleteMany(ctx, c.coll, byUser(userID))
}

type userCollection struct {
	coll *mongo.Collection
}

func (c *userCollection) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	now := toDateTime(time.Now())
	var doc userDoc
	err := c.coll.FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&doc)
	switch {
	case err == nil:
		set := bson.M{"first_name": firstName, "last_name": lastName, "username": username, "updated_at": now}
		if _, err := c.coll.UpdateOne(ctx, bson.M{"id": doc.ID}, bson.M{"$set": set}); err != nil {
			return nil, wrap("update user", err)
		}
		doc.FirstName, doc.LastName, doc.Username, doc.UpdatedAt = firstName, lastName, username, now
	case errors.Is(err, mongo.ErrNoDocuments):
		doc = userDoc{
			ID:         uuid.NewString(),
			TelegramID: &telegramID,
			FirstName:  firstName,
			LastName:   lastName,
			Username:   username,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := c.coll.InsertOne(ctx, doc); err != nil {
			return nil, wrap("create user", err)
		}
	default:
		return nil, wrap("find user", err)
	}
	user := doc.model()
	return &user, nil
}

func (c *userCollection) Get(ctx context.Context, id string) (*model.User, error) {
	var doc userDoc
	if err := c.coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		return nil, wrap("get user", err)
	}
	user := doc.model()
	return &user, nil
}

func (c *userCollection) ListAll(ctx context.Context) ([]model.User, error) {
	return findAll(ctx, c.coll, bson.M{}, nil, userDoc.model)
}
