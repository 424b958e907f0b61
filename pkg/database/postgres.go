package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	migratePostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migrateSqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/buildle-api/internal/config"
	"github.com/yourusername/buildle-api/migrations"
)

// Поддерживаемые драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open открывает соединение согласно database.driver
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgresDB(cfg.PostgresConnectionString(), cfg.MaxOpenConns, cfg.MaxIdleConns)
	case DriverSQLite:
		return NewSQLiteDB(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPostgresDB создает новое подключение к PostgreSQL
func NewPostgresDB(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Настройка пула соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// MigrateDB применяет встроенные SQL-миграции для указанного драйвера
func MigrateDB(db *gorm.DB, driver string) error {
	logger := log.With().Str("component", "migrate").Str("driver", driver).Logger()
	logger.Info().Msg("запуск применения миграций базы данных")

	m, err := NewMigrator(db, driver)
	if err != nil {
		return err
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrateV4.ErrNoChange):
		logger.Info().Msg("изменений в миграциях не найдено, база данных уже актуальна")
	case err != nil:
		return fmt.Errorf("ошибка применения миграций 'up': %w", err)
	default:
		logger.Info().Msg("миграции успешно применены")
	}
	return nil
}

// NewMigrator создает экземпляр golang-migrate поверх открытого соединения.
// Источник миграций - встроенный migrations.FS, каталог по имени драйвера.
func NewMigrator(db *gorm.DB, driver string) (*migrateV4.Migrate, error) {
	sqlDB, err := GetSQLDB(db)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("не удалось проверить подключение к БД перед миграцией: %w", err)
	}

	src, err := iofs.New(migrations.FS, driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations for %s: %w", driver, err)
	}

	switch driver {
	case DriverPostgres:
		dbDriver, err := migratePostgres.WithInstance(sqlDB, &migratePostgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("не удалось создать драйвер postgres для migrate: %w", err)
		}
		return migrateV4.NewWithInstance("iofs", src, "postgres", dbDriver)
	case DriverSQLite:
		dbDriver, err := migrateSqlite.WithInstance(sqlDB, &migrateSqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("не удалось создать драйвер sqlite для migrate: %w", err)
		}
		return migrateV4.NewWithInstance("iofs", src, "sqlite3", dbDriver)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// GetSQLDB возвращает базовый *sql.DB из *gorm.DB
func GetSQLDB(gormDB *gorm.DB) (*sql.DB, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB, nil
}
