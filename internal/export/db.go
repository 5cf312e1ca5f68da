package export

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"revsim/internal/sim"
	"revsim/pkg/models"
)

// insertBatchSize keeps each INSERT under sqlite's bind-variable limit.
const insertBatchSize = 500

// Database wraps the GORM instance the dataset is exported into.
type Database struct {
	DB *gorm.DB
}

// OpenDatabase connects to the export target. Supported drivers are
// "sqlite" (dsn is a file path) and "postgres" (dsn is a connection string).
func OpenDatabase(driver, dsn string) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error
	switch driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

// Migrate creates the schema for every exported record type.
func (d *Database) Migrate() error {
	err := d.DB.AutoMigrate(
		&models.Subscriber{},
		&models.Subscription{},
		&models.Invoice{},
		&models.LineItem{},
		&models.Payment{},
		&models.UsageEvent{},
		&models.Transfer{},
		&models.LifecycleEvent{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// WriteDataset bulk-inserts every collection of the dataset.
func (d *Database) WriteDataset(dataset *sim.Dataset) error {
	if err := insert(d.DB, dataset.Subscribers); err != nil {
		return fmt.Errorf("export subscribers: %w", err)
	}
	if err := insert(d.DB, dataset.Subscriptions); err != nil {
		return fmt.Errorf("export subscriptions: %w", err)
	}
	if err := insert(d.DB, dataset.Invoices); err != nil {
		return fmt.Errorf("export invoices: %w", err)
	}
	if err := insert(d.DB, dataset.Payments); err != nil {
		return fmt.Errorf("export payments: %w", err)
	}
	if err := insert(d.DB, dataset.UsageEvents); err != nil {
		return fmt.Errorf("export usage events: %w", err)
	}
	if err := insert(d.DB, dataset.Transfers); err != nil {
		return fmt.Errorf("export transfers: %w", err)
	}
	if err := insert(d.DB, dataset.Events); err != nil {
		return fmt.Errorf("export lifecycle events: %w", err)
	}
	return nil
}

func insert[T any](db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.CreateInBatches(rows, insertBatchSize).Error
}
