package store

import (
	"fmt"
	"strings"

	"github.com/feedgrid/feedgrid/internal/config"
)

// New creates a Store instance based on configuration.
// Production wide-column engines register here; memory is the default.
func New(cfg config.StoreConfig) (Store, error) {
	storeType := strings.ToLower(cfg.Type)
	if storeType == "" {
		storeType = "memory"
	}

	switch storeType {
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory)", cfg.Type)
	}
}
