package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/afero"

	"garden-planner/internal/backup"
	"garden-planner/internal/cache"
	"garden-planner/internal/config"
	"garden-planner/internal/logging"
	"garden-planner/internal/model"
	"garden-planner/internal/netstate"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
	"garden-planner/internal/repository/mongostore"
	"garden-planner/internal/resilience"
	"garden-planner/internal/service"
)

// app is the wired planner shared by every command.
type app struct {
	cfg       config.Config
	logger    *log.Logger
	store     repository.Store
	monitor   *netstate.Monitor
	library   *photos.Library
	tasks     *service.TaskService
	plants    *service.PlantService
	journal   *service.JournalService
	reminders *service.ReminderService
	backups   *backup.Service

	closers []io.Closer
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if userFlag != "" {
		cfg.User = userFlag
	}

	logOut, logCloser := logging.Setup(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB})
	logger := log.New(logOut, "", log.LstdFlags)
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	store, err := openStore(ctx, cfg, logOut)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)

	local, err := cache.Open(cfg.CachePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, local)

	a.monitor = netstate.NewMonitor(store.Ping, cfg.RemoteTimeout, logger)
	a.monitor.Check(ctx)

	guard := service.NewRemoteGuard(resilience.Policy{
		Timeout:    cfg.RemoteTimeout,
		MaxRetries: cfg.RemoteMaxRetries,
		BaseDelay:  cfg.RemoteBaseDelay,
	}, a.monitor, logger)

	fs := afero.NewOsFs()
	library, err := photos.NewLibrary(fs, cfg.PhotoDir, cfg.PhotoSearchDirs, 0)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.library = library

	a.tasks = service.NewTaskService(store, guard, local, cfg.Location, logger)
	a.plants = service.NewPlantService(store, guard, local, library, logger)
	a.journal = service.NewJournalService(store, guard, local, cfg.Location, logger)
	a.reminders = service.NewReminderService(a.tasks, a.plants)
	a.backups = backup.NewService(store, guard, library, fs, cfg.Location, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logOut io.Writer) (repository.Store, error) {
	if cfg.IsMongo() {
		store, err := mongostore.Connect(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		return store, nil
	}
	db, err := repository.NewDB(cfg.DatabaseURL, logOut)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return repository.NewGormStore(db), nil
}

// currentUser is the planner user CLI commands act as.
func (a *app) currentUser(ctx context.Context) (*model.User, error) {
	if a.cfg.User == "" {
		return nil, fmt.Errorf("%w: set GARDEN_USER or pass --user", model.ErrNotAuthenticated)
	}
	user, err := a.store.Users().Get(ctx, a.cfg.User)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %q, start the bot once to register", model.ErrNotAuthenticated, a.cfg.User)
	}
	return user, err
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Printf("[warn] close: %v", err)
		}
	}
	a.closers = nil
}

// withUser opens the app, resolves the CLI user and runs fn.
func withUser(ctx context.Context, fn func(a *app, user *model.User) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}
	return fn(a, user)
}
