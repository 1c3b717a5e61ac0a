package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/persistence/file"
	"github.com/dukex/workflow-manager/pkg/persistence/mongodb"
)

const connectTimeout = 30 * time.Second

// NewPersistence opens the store named by databaseURL: mongodb:// and
// mongodb+srv:// select MongoDB, file:// or a bare path the file store.
// Missing indexes are created before returning.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, databaseName string) persistence.Persistence {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var (
		p   persistence.Persistence
		err error
	)

	switch parsePersistenceProvider(databaseURL) {
	case "mongodb":
		p, err = mongodb.NewPersistence(ctx, logger, databaseURL, databaseName)
		if err != nil {
			panic(fmt.Errorf("failed to connect to MongoDB: %w", err))
		}
	default:
		p = file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}

	err = p.EnsureIndexes(ctx)
	if err != nil {
		panic(fmt.Errorf("failed to ensure indexes: %w", err))
	}

	return p
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	if provider == "mongodb" || provider == "mongodb+srv" {
		return "mongodb"
	}

	return "file"
}
