package psql

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smidr/smidr/config"
	"smidr/smidr/sources/psql/dao"
	"smidr/smidr/sources/psql/models"
	"smidr/smidr/utils/logging"
)

const defaultSQLitePath = "smidr.db"

type Database struct {
	DB *gorm.DB
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if _, ok := dialector.(*sqlite.Dialector); ok {
		// a second connection to ":memory:" would see an empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	logging.AppLogger.Info("database connected", zap.String("driver", cfg.DBDriver))

	if err := db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return &Database{DB: db}, nil
}

func dialectorFor(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres", "postgresql":
		return postgres.Open(cfg.PostgresDSN()), nil
	case "sqlite", "":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// SeedUsers writes the configured accounts into the directory. Existing users get
// their password and pages replaced; users not in the list are left alone.
func (db *Database) SeedUsers(ctx context.Context, users []config.User) error {
	userDAO := dao.NewUserDAO(db.DB)
	for _, u := range users {
		if _, err := userDAO.UpsertUser(ctx, u.Username, u.Password, u.Pages); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	logging.AppLogger.Info("user directory seeded", zap.Int("users", len(users)))
	return nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
