package websocket_test

import (
	"github.com/terratd/simcore/internal/storage"
	"github.com/terratd/simcore/internal/storage/websocket"
)

// Compile-time interface check.
var _ storage.Backend = (*websocket.Backend)(nil)
