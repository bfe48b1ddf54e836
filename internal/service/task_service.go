package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"garden-planner/internal/cache"
	"garden-planner/internal/model"
	"garden-planner/internal/repository"
	"garden-planner/internal/resilience"
)

// NewRemoteGuard builds the Guard every remote call of the services goes
// through. Model errors describe the request, not the connection, and are
// never retried.
func NewRemoteGuard(policy resilience.Policy, net resilience.Reachability, logger *log.Logger) *resilience.Guard {
	return resilience.New(policy, net, logger,
		model.ErrNotAuthenticated,
		model.ErrPermissionDenied,
		model.ErrNotFound,
		model.ErrConflict,
		model.ErrInvalidInput,
	)
}

// TaskInput represents data required to create a template.
type TaskInput struct {
	PlantID       string
	Kind          model.TaskKind
	FrequencyDays int
	// NextDueAt is an ISO-8601 instant or date. Empty means now.
	NextDueAt     string
	Disabled      bool
	PreferredTime model.TimeOfDay
}

// TaskUpdate is a partial template update. A non-nil empty PlantID detaches
// the template from its plant.
type TaskUpdate struct {
	PlantID       *string
	Kind          *model.TaskKind
	FrequencyDays *int
	NextDueAt     *string
	Enabled       *bool
	PreferredTime *model.TimeOfDay
}

// DoneInput carries the optional details of a completion.
type DoneInput struct {
	Notes       string
	ProductUsed string
}

// TaskService owns templates and their completion logs. Reads go to the remote
// store first and fall back to the local cache; writes always go to the remote
// store and fail when it is unreachable.
type TaskService struct {
	store     repository.Store
	guard     *resilience.Guard
	templates cache.Tiered[model.TaskTemplate]
	logs      cache.Tiered[model.TaskLog]
	loc       *time.Location
	now       func() time.Time
	logger    *log.Logger
}

func NewTaskService(store repository.Store, guard *resilience.Guard, local cache.Source, loc *time.Location, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{
		store:     store,
		guard:     guard,
		templates: cache.NewTiered[model.TaskTemplate](local, logger),
		logs:      cache.NewTiered[model.TaskLog](local, logger),
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *TaskService) Location() *time.Location {
	return s.loc
}

// GetTaskTemplates lists every template of the user, newest first.
func (s *TaskService) GetTaskTemplates(ctx context.Context, user *model.User) ([]model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return s.templates.Read(ctx, cache.Key(cache.Tasks, userID), func(ctx context.Context) ([]model.TaskTemplate, error) {
		return resilience.Call(ctx, s.guard, "list templates", func(ctx context.Context) ([]model.TaskTemplate, error) {
			return s.store.Templates().List(ctx, userID, repository.TemplateFilter{})
		})
	})
}

// GetTodayTasks lists enabled templates due before the end of the local day,
// overdue ones included, earliest due first.
func (s *TaskService) GetTodayTasks(ctx context.Context, user *model.User) ([]model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	enabled, err := s.templates.Read(ctx, cache.Key(cache.TodayTasks, userID), func(ctx context.Context) ([]model.TaskTemplate, error) {
		return resilience.Call(ctx, s.guard, "list enabled templates", func(ctx context.Context) ([]model.TaskTemplate, error) {
			return s.store.Templates().List(ctx, userID, repository.TemplateFilter{EnabledOnly: true})
		})
	})
	if err != nil {
		return nil, err
	}

	end := model.EndOfDay(s.now(), s.loc)
	due := make([]model.TaskTemplate, 0, len(enabled))
	for _, t := range enabled {
		if t.Enabled && !t.NextDueAt.After(end) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextDueAt.Before(due[j].NextDueAt) })
	return due, nil
}

func (s *TaskService) GetTaskTemplate(ctx context.Context, user *model.User, id string) (*model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return resilience.Call(ctx, s.guard, "get template", func(ctx context.Context) (*model.TaskTemplate, error) {
		return s.store.Templates().Get(ctx, userID, id)
	})
}

func (s *TaskService) CreateTaskTemplate(ctx context.Context, user *model.User, input TaskInput) (*model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	if !input.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown task kind %q", model.ErrInvalidInput, input.Kind)
	}
	if !input.PreferredTime.Valid() {
		return nil, fmt.Errorf("%w: unknown time of day %q", model.ErrInvalidInput, input.PreferredTime)
	}

	now := s.now()
	due := now
	if input.NextDueAt != "" {
		due, err = model.FromWireTimestamp(input.NextDueAt, s.loc)
		if err != nil {
			return nil, err
		}
	}

	tmpl := &model.TaskTemplate{
		ID:            uuid.NewString(),
		UserID:        userID,
		PlantID:       optionalID(input.PlantID),
		Kind:          input.Kind,
		FrequencyDays: input.FrequencyDays,
		NextDueAt:     due.UTC(),
		Enabled:       !input.Disabled,
		PreferredTime: input.PreferredTime,
		CreatedAt:     now.UTC(),
	}
	if err := s.guard.Do(ctx, "create template", func(ctx context.Context) error {
		return s.store.Templates().Create(ctx, tmpl)
	}); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// UpdateTaskTemplate applies update and returns the stored template as read
// back by id.
func (s *TaskService) UpdateTaskTemplate(ctx context.Context, user *model.User, id string, update TaskUpdate) (*model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	patch, err := s.buildPatch(update)
	if err != nil {
		return nil, err
	}
	if !patch.Empty() {
		if err := s.guard.Do(ctx, "update template", func(ctx context.Context) error {
			return s.store.Templates().Update(ctx, userID, id, patch)
		}); err != nil {
			return nil, err
		}
	}
	return s.GetTaskTemplate(ctx, user, id)
}

func (s *TaskService) buildPatch(update TaskUpdate) (model.TemplatePatch, error) {
	var patch model.TemplatePatch
	if update.PlantID != nil {
		plantID := optionalID(*update.PlantID)
		patch.PlantID = &plantID
	}
	if update.Kind != nil {
		if !update.Kind.Valid() {
			return patch, fmt.Errorf("%w: unknown task kind %q", model.ErrInvalidInput, *update.Kind)
		}
		patch.Kind = update.Kind
	}
	if update.PreferredTime != nil {
		if !update.PreferredTime.Valid() {
			return patch, fmt.Errorf("%w: unknown time of day %q", model.ErrInvalidInput, *update.PreferredTime)
		}
		patch.PreferredTime = update.PreferredTime
	}
	if update.NextDueAt != nil {
		due, err := model.FromWireTimestamp(*update.NextDueAt, s.loc)
		if err != nil {
			return patch, err
		}
		patch.NextDueAt = &due
	}
	patch.FrequencyDays = update.FrequencyDays
	patch.Enabled = update.Enabled
	return patch, nil
}

// SnoozeTask pushes the next due date to days from now without logging a
// completion.
func (s *TaskService) SnoozeTask(ctx context.Context, user *model.User, id string, days int) (*model.TaskTemplate, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: snooze needs a positive number of days", model.ErrInvalidInput)
	}
	due := model.ToWireTimestamp(s.now().In(s.loc).AddDate(0, 0, days))
	return s.UpdateTaskTemplate(ctx, user, id, TaskUpdate{NextDueAt: &due})
}

// SkipTask moves a recurring template to its next occurrence without logging
// a completion. One-time templates cannot be skipped.
func (s *TaskService) SkipTask(ctx context.Context, user *model.User, id string) (*model.TaskTemplate, error) {
	tmpl, err := s.GetTaskTemplate(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if tmpl.OneTime() {
		return nil, fmt.Errorf("%w: one-time task cannot be skipped", model.ErrInvalidInput)
	}
	due := model.ToWireTimestamp(s.now().In(s.loc).AddDate(0, 0, tmpl.Frequency()))
	return s.UpdateTaskTemplate(ctx, user, id, TaskUpdate{NextDueAt: &due})
}

// FindTaskTemplate looks a template up by full id or by a unique id prefix.
func (s *TaskService) FindTaskTemplate(ctx context.Context, user *model.User, ref string) (*model.TaskTemplate, error) {
	templates, err := s.GetTaskTemplates(ctx, user)
	if err != nil {
		return nil, err
	}
	return matchByPrefix(templates, func(t model.TaskTemplate) string { return t.ID }, ref)
}

func matchByPrefix[T any](items []T, id func(T) string, ref string) (*T, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return nil, fmt.Errorf("%w: empty id", model.ErrInvalidInput)
	}
	var found *T
	for i := range items {
		itemID := id(items[i])
		if itemID == ref {
			return &items[i], nil
		}
		if strings.HasPrefix(itemID, ref) {
			if found != nil {
				return nil, fmt.Errorf("%w: id %q matches several records", model.ErrInvalidInput, ref)
			}
			found = &items[i]
		}
	}
	if found == nil {
		return nil, model.ErrNotFound
	}
	return found, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, id string) error {
	userID, err := model.RequireUser(user)
	if err != nil {
		return err
	}
	return s.guard.Do(ctx, "delete template", func(ctx context.Context) error {
		return s.store.Templates().Delete(ctx, userID, id)
	})
}

// GetTaskLogs lists completion logs, newest first.
func (s *TaskService) GetTaskLogs(ctx context.Context, user *model.User) ([]model.TaskLog, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return s.logs.Read(ctx, cache.Key(cache.TaskLogs, userID), func(ctx context.Context) ([]model.TaskLog, error) {
		return resilience.Call(ctx, s.guard, "list task logs", func(ctx context.Context) ([]model.TaskLog, error) {
			return s.store.Logs().List(ctx, userID)
		})
	})
}

// MarkTaskDone records a completion of tmpl and reports whether it counted.
// A second completion on the same local day does not count and writes
// nothing, except that a one-time template is disabled again.
//
// The template write and the log insert are conditional on the revision read
// here. When another session completes the template first, the template is
// read again and the duplicate check repeated once.
func (s *TaskService) MarkTaskDone(ctx context.Context, user *model.User, tmpl *model.TaskTemplate, input DoneInput) (bool, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return false, err
	}
	if tmpl == nil || tmpl.ID == "" {
		return false, fmt.Errorf("%w: template is required", model.ErrInvalidInput)
	}

	now := s.now()
	counted, err := s.completeOnce(ctx, userID, *tmpl, now, input)
	if !errors.Is(err, model.ErrConflict) {
		return counted, err
	}

	fresh, err := s.GetTaskTemplate(ctx, user, tmpl.ID)
	if err != nil {
		return false, err
	}
	counted, err = s.completeOnce(ctx, userID, *fresh, now, input)
	if errors.Is(err, model.ErrConflict) {
		s.logger.Printf("[warn] template %s changed twice during completion, not counted", tmpl.ID)
		return false, nil
	}
	return counted, err
}

func (s *TaskService) completeOnce(ctx context.Context, userID string, tmpl model.TaskTemplate, now time.Time, input DoneInput) (bool, error) {
	start, end := model.StartOfDay(now, s.loc), model.EndOfDay(now, s.loc)

	existing, err := resilience.Call(ctx, s.guard, "list template logs", func(ctx context.Context) ([]model.TaskLog, error) {
		return s.store.Logs().ListByTemplate(ctx, userID, tmpl.ID)
	})
	if err != nil {
		return false, err
	}
	for _, entry := range existing {
		if entry.DoneAt.Before(start) || entry.DoneAt.After(end) {
			continue
		}
		if tmpl.OneTime() {
			disabled := false
			if err := s.guard.Do(ctx, "disable template", func(ctx context.Context) error {
				return s.store.Templates().Update(ctx, userID, tmpl.ID, model.TemplatePatch{Enabled: &disabled})
			}); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	completion := model.Completion{
		UserID:         userID,
		TemplateID:     tmpl.ID,
		ExpectRevision: tmpl.Revision,
		Log: &model.TaskLog{
			ID:          uuid.NewString(),
			UserID:      userID,
			TemplateID:  tmpl.ID,
			PlantID:     copyID(tmpl.PlantID),
			Kind:        tmpl.Kind,
			DoneAt:      now.UTC(),
			Notes:       input.Notes,
			ProductUsed: input.ProductUsed,
			CreatedAt:   now.UTC(),
		},
	}
	if tmpl.OneTime() {
		completion.NextDueAt = now.UTC()
		completion.Enabled = false
	} else {
		completion.NextDueAt = now.In(s.loc).AddDate(0, 0, tmpl.Frequency()).UTC()
		completion.Enabled = tmpl.Enabled
	}

	err = s.guard.Do(ctx, "complete template", func(ctx context.Context) error {
		return s.store.Templates().Complete(ctx, completion)
	})
	if errors.Is(err, model.ErrConflict) && s.logWritten(ctx, userID, tmpl.ID, completion.Log.ID) {
		// An earlier attempt landed before its reply was lost.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *TaskService) logWritten(ctx context.Context, userID, templateID, logID string) bool {
	logs, err := resilience.Call(ctx, s.guard, "list template logs", func(ctx context.Context) ([]model.TaskLog, error) {
		return s.store.Logs().ListByTemplate(ctx, userID, templateID)
	})
	if err != nil {
		return false
	}
	for _, entry := range logs {
		if entry.ID == logID {
			return true
		}
	}
	return false
}

// GenerateRecurringTasksFromPlants creates one template per plant and care
// kind that the plant's schedule asks for and that no existing template
// covers yet. Existing templates are read once for the whole batch.
func (s *TaskService) GenerateRecurringTasksFromPlants(ctx context.Context, user *model.User, plants []model.Plant) ([]model.TaskTemplate, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}

	existing, err := resilience.Call(ctx, s.guard, "list templates", func(ctx context.Context) ([]model.TaskTemplate, error) {
		return s.store.Templates().List(ctx, userID, repository.TemplateFilter{})
	})
	if err != nil {
		return nil, err
	}

	type pair struct {
		plantID string
		kind    model.TaskKind
	}
	covered := make(map[pair]bool, len(existing))
	for _, t := range existing {
		if !t.General() {
			covered[pair{*t.PlantID, t.Kind}] = true
		}
	}

	now := s.now().UTC()
	var created []model.TaskTemplate
	for _, plant := range plants {
		if !plant.Care.AutoGenerate || plant.ID == "" {
			continue
		}
		intervals := plant.Care.Intervals()
		for _, kind := range []model.TaskKind{model.TaskWater, model.TaskFertilise, model.TaskPrune} {
			days, ok := intervals[kind]
			if !ok || covered[pair{plant.ID, kind}] {
				continue
			}
			plantID := plant.ID
			tmpl := &model.TaskTemplate{
				ID:            uuid.NewString(),
				UserID:        userID,
				PlantID:       &plantID,
				Kind:          kind,
				FrequencyDays: days,
				NextDueAt:     now,
				Enabled:       true,
				CreatedAt:     now,
			}
			if err := s.guard.Do(ctx, "create generated template", func(ctx context.Context) error {
				return s.store.Templates().Create(ctx, tmpl)
			}); err != nil {
				return created, err
			}
			covered[pair{plant.ID, kind}] = true
			created = append(created, *tmpl)
		}
	}
	if len(created) > 0 {
		s.logger.Printf("[info] generated %d care tasks for user %s", len(created), userID)
	}
	return created, nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// GenerateForAllUsers runs GenerateRecurringTasksFromPlants for every known
// user. A failing user is logged and skipped.
func (s *TaskService) GenerateForAllUsers(ctx context.Context, plants *PlantService) (int, error) {
	users, err := resilience.Call(ctx, s.guard, "list users", func(ctx context.Context) ([]model.User, error) {
		return s.store.Users().ListAll(ctx)
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range users {
		user := &users[i]
		list, err := plants.List(ctx, user)
		if err != nil {
			s.logger.Printf("[warn] generate tasks for user %s: %v", user.ID, err)
			continue
		}
		created, err := s.GenerateRecurringTasksFromPlants(ctx, user, list)
		total += len(created)
		if err != nil {
			s.logger.Printf("[warn] generate tasks for user %s: %v", user.ID, err)
		}
	}
	return total, nil
}
