package storage

import (
	"fmt"

	"github.com/terratd/simcore/internal/config"
	"github.com/terratd/simcore/internal/logging"
	"github.com/terratd/simcore/internal/storage/memory"
	"github.com/terratd/simcore/internal/storage/postgres"
	sqlitestorage "github.com/terratd/simcore/internal/storage/sqlite"
	"github.com/terratd/simcore/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(logManager)
	case "sqlite":
		return sqlitestorage.New(cfg.Sqlite, logManager)
	case "memory":
		return memory.New(cfg.Memory), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}, logManager.Logger()), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
