// Package memstore is an in-memory Store with failure injection, used to run
// the engines without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"garden-planner/internal/model"
	"garden-planner/internal/repository"
)

type Store struct {
	mu        sync.Mutex
	failWith  error
	writes    int
	users     map[string]model.User
	templates map[string][]model.TaskTemplate
	logs      map[string][]model.TaskLog
	plants    map[string][]model.Plant
	journal   map[string][]model.JournalEntry
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     map[string]model.User{},
		templates: map[string][]model.TaskTemplate{},
		logs:      map[string][]model.TaskLog{},
		plants:    map[string][]model.Plant{},
		journal:   map[string][]model.JournalEntry{},
	}
}

// Fail makes every following call return err. Fail(nil) heals the store.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Writes counts successful mutating calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) Templates() repository.TemplateStore { return templates{s} }
func (s *Store) Logs() repository.LogStore           { return logs{s} }
func (s *Store) Plants() repository.PlantStore       { return plants{s} }
func (s *Store) Journal() repository.JournalStore    { return journal{s} }
func (s *Store) Users() repository.UserStore         { return users{s} }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx)
}

func (s *Store) Close() error { return nil }

// lock takes the store mutex and reports an injected failure. Callers must
// unlock even when an error is returned.
func (s *Store) lock(ctx context.Context) error {
	s.mu.Lock()
	return s.check(ctx)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failWith
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

type templates struct{ s *Store }

func (r templates) List(ctx context.Context, userID string, filter repository.TemplateFilter) ([]model.TaskTemplate, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	out := []model.TaskTemplate{}
	for _, t := range r.s.templates[userID] {
		if filter.EnabledOnly && !t.Enabled {
			continue
		}
		if filter.PlantID != "" && (t.PlantID == nil || *t.PlantID != filter.PlantID) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r templates) Get(ctx context.Context, userID, id string) (*model.TaskTemplate, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	items := r.s.templates[userID]
	i := indexOf(items, func(t model.TaskTemplate) bool { return t.ID == id })
	if i < 0 {
		return nil, model.ErrNotFound
	}
	t := items[i]
	return &t, nil
}

func (r templates) Exists(ctx context.Context, userID, id string) (bool, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	return indexOf(r.s.templates[userID], func(t model.TaskTemplate) bool { return t.ID == id }) >= 0, nil
}

func (r templates) Create(ctx context.Context, tmpl *model.TaskTemplate) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	if indexOf(r.s.templates[tmpl.UserID], func(t model.TaskTemplate) bool { return t.ID == tmpl.ID }) >= 0 {
		return model.ErrConflict
	}
	now := time.Now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now
	tmpl.NextDueAt = tmpl.NextDueAt.UTC()
	r.s.templates[tmpl.UserID] = append(r.s.templates[tmpl.UserID], *tmpl)
	r.s.writes++
	return nil
}

func (r templates) Update(ctx context.Context, userID, id string, patch model.TemplatePatch) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	items := r.s.templates[userID]
	i := indexOf(items, func(t model.TaskTemplate) bool { return t.ID == id })
	if i < 0 {
		return model.ErrNotFound
	}
	patch.Apply(&items[i])
	items[i].Revision++
	items[i].UpdatedAt = time.Now().UTC()
	r.s.writes++
	return nil
}

func (r templates) Complete(ctx context.Context, c model.Completion) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	items := r.s.templates[c.UserID]
	i := indexOf(items, func(t model.TaskTemplate) bool { return t.ID == c.TemplateID })
	if i < 0 {
		return model.ErrNotFound
	}
	if items[i].Revision != c.ExpectRevision {
		return model.ErrConflict
	}
	items[i].NextDueAt = c.NextDueAt.UTC()
	items[i].Enabled = c.Enabled
	items[i].Revision++
	items[i].UpdatedAt = time.Now().UTC()
	if c.Log != nil {
		entry := *c.Log
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		r.s.logs[c.UserID] = append(r.s.logs[c.UserID], entry)
	}
	r.s.writes++
	return nil
}

func (r templates) Delete(ctx context.Context, userID, id string) error {
	return r.deleteWhere(ctx, userID, func(t model.TaskTemplate) bool { return t.ID == id })
}

func (r templates) DeleteByPlant(ctx context.Context, userID, plantID string) error {
	return r.deleteWhere(ctx, userID, func(t model.TaskTemplate) bool { return t.PlantID != nil && *t.PlantID == plantID })
}

func (r templates) DeleteAll(ctx context.Context, userID string) error {
	return r.deleteWhere(ctx, userID, func(model.TaskTemplate) bool { return true })
}

func (r templates) deleteWhere(ctx context.Context, userID string, match func(model.TaskTemplate) bool) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	r.s.templates[userID] = remove(r.s.templates[userID], match)
	r.s.writes++
	return nil
}

type logs struct{ s *Store }

func (r logs) List(ctx context.Context, userID string) ([]model.TaskLog, error) {
	return r.list(ctx, userID, func(model.TaskLog) bool { return true })
}

func (r logs) ListByTemplate(ctx context.Context, userID, templateID string) ([]model.TaskLog, error) {
	return r.list(ctx, userID, func(l model.TaskLog) bool { return l.TemplateID == templateID })
}

func (r logs) list(ctx context.Context, userID string, match func(model.TaskLog) bool) ([]model.TaskLog, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	out := []model.TaskLog{}
	for _, l := range r.s.logs[userID] {
		if match(l) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DoneAt.After(out[j].DoneAt) })
	return out, nil
}

func (r logs) Exists(ctx context.Context, userID, id string) (bool, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	return indexOf(r.s.logs[userID], func(l model.TaskLog) bool { return l.ID == id }) >= 0, nil
}

func (r logs) Create(ctx context.Context, entry *model.TaskLog) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	if indexOf(r.s.logs[entry.UserID], func(l model.TaskLog) bool { return l.ID == entry.ID }) >= 0 {
		return model.ErrConflict
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.s.logs[entry.UserID] = append(r.s.logs[entry.UserID], *entry)
	r.s.writes++
	return nil
}

func (r logs) DeleteAll(ctx context.Context, userID string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	delete(r.s.logs, userID)
	r.s.writes++
	return nil
}

type plants struct{ s *Store }

func (r plants) List(ctx context.Context, userID string) ([]model.Plant, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	out := append([]model.Plant{}, r.s.plants[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r plants) Get(ctx context.Context, userID, id string) (*model.Plant, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	items := r.s.plants[userID]
	i := indexOf(items, func(p model.Plant) bool { return p.ID == id })
	if i < 0 {
		return nil, model.ErrNotFound
	}
	p := items[i]
	return &p, nil
}

func (r plants) Exists(ctx context.Context, userID, id string) (bool, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	return indexOf(r.s.plants[userID], func(p model.Plant) bool { return p.ID == id }) >= 0, nil
}

func (r plants) Create(ctx context.Context, plant *model.Plant) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	if indexOf(r.s.plants[plant.UserID], func(p model.Plant) bool { return p.ID == plant.ID }) >= 0 {
		return model.ErrConflict
	}
	now := time.Now().UTC()
	if plant.CreatedAt.IsZero() {
		plant.CreatedAt = now
	}
	plant.UpdatedAt = now
	r.s.plants[plant.UserID] = append(r.s.plants[plant.UserID], *plant)
	r.s.writes++
	return nil
}

func (r plants) Delete(ctx context.Context, userID, id string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	r.s.plants[userID] = remove(r.s.plants[userID], func(p model.Plant) bool { return p.ID == id })
	r.s.writes++
	return nil
}

func (r plants) DeleteAll(ctx context.Context, userID string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	delete(r.s.plants, userID)
	r.s.writes++
	return nil
}

type journal struct{ s *Store }

func (r journal) List(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	out := append([]model.JournalEntry{}, r.s.journal[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.After(out[j].EntryDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r journal) Exists(ctx context.Context, userID, id string) (bool, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	return indexOf(r.s.journal[userID], func(e model.JournalEntry) bool { return e.ID == id }) >= 0, nil
}

func (r journal) Create(ctx context.Context, entry *model.JournalEntry) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	if indexOf(r.s.journal[entry.UserID], func(e model.JournalEntry) bool { return e.ID == entry.ID }) >= 0 {
		return model.ErrConflict
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.s.journal[entry.UserID] = append(r.s.journal[entry.UserID], *entry)
	r.s.writes++
	return nil
}

func (r journal) Delete(ctx context.Context, userID, id string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	r.s.journal[userID] = remove(r.s.journal[userID], func(e model.JournalEntry) bool { return e.ID == id })
	r.s.writes++
	return nil
}

func (r journal) DeleteAll(ctx context.Context, userID string) error {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	delete(r.s.journal, userID)
	r.s.writes++
	return nil
}

type users struct{ s *Store }

func (r users) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for id, u := range r.s.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			u.FirstName, u.LastName, u.Username, u.UpdatedAt = firstName, lastName, username, now
			r.s.users[id] = u
			return &u, nil
		}
	}
	tid := telegramID
	u := model.User{
		ID:         uuid.NewString(),
		TelegramID: &tid,
		FirstName:  firstName,
		LastName:   lastName,
		Username:   username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.s.users[u.ID] = u
	return &u, nil
}

func (r users) Get(ctx context.Context, id string) (*model.User, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (r users) ListAll(ctx context.Context) ([]model.User, error) {
	defer r.s.mu.Unlock()
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddUser registers a user directly, for tests and the local CLI.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func remove[T any](items []T, match func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}
