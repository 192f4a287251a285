// Package postgres implements the storage.Backend interface on a PostgreSQL
// connection. It composes the shared GORM backend; the only Postgres-specific
// concerns are connecting and validating the connection pool.
package postgres

import (
	"fmt"

	"github.com/terratd/simcore/internal/database"
	"github.com/terratd/simcore/internal/logging"
	gormstorage "github.com/terratd/simcore/internal/storage/gorm"
)

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
}

// New connects to Postgres using the viper db.* settings and builds the
// queue-based GORM backend on top of it.
func New(logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.GetPostgresDBStandalone()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
	})

	return &Backend{Backend: gormBackend}, nil
}
