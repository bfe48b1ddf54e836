package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garden-planner/internal/model"
)

// NewDB opens the SQL backend named by dsn and runs migrations. DSNs starting
// with postgres:// or postgresql:// use Postgres, anything else is a SQLite path.
func NewDB(dsn string, logOut io.Writer) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "garden.db"
	}
	if logOut == nil {
		logOut = os.Stdout
	}

	dbLogger := logger.New(
		log.New(logOut, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		if err := ensureDirForSQLite(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  dbLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Plant{}, &model.TaskTemplate{}, &model.TaskLog{}, &model.JournalEntry{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// GormStore is the SQL implementation of Store.
type GormStore struct {
	db        *gorm.DB
	templates *TemplateRepository
	logs      *TaskLogRepository
	plants    *PlantRepository
	journal   *JournalRepository
	users     *UserRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:        db,
		templates: NewTemplateRepository(db),
		logs:      NewTaskLogRepository(db),
		plants:    NewPlantRepository(db),
		journal:   NewJournalRepository(db),
		users:     NewUserRepository(db),
	}
}

func (s *GormStore) Templates() TemplateStore { return s.templates }
func (s *GormStore) Logs() LogStore           { return s.logs }
func (s *GormStore) Plants() PlantStore       { return s.plants }
func (s *GormStore) Journal() JournalStore    { return s.journal }
func (s *GormStore) Users() UserStore         { return s.users }

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound maps gorm's missing-row error onto the model sentinel.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return err
}

func exists(ctx context.Context, db *gorm.DB, value any, userID, id string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(value).Where("user_id = ? AND id = ?", userID, id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
