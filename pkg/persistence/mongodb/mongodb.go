// Package mongodb implements the document store on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/workflow-manager/pkg/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	WorkflowsCollection             = "Workflows"
	WorkflowInstancesCollection     = "WorkflowInstances"
	ExecutionStatsCollection        = "ExecutionStats"
	PayloadsCollection              = "Payloads"
	ArtifactReceivedItemsCollection = "ArtifactReceivedItems"
)

var _ persistence.Persistence = (*Persistence)(nil)

// Persistence implements persistence.Persistence on one MongoDB database.
type Persistence struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger

	workflows *WorkflowRepository
	instances *WorkflowInstanceRepository
	stats     *ExecutionStatsRepository
	payloads  *PayloadRepository
	artifacts *ArtifactReceivedRepository
}

// NewPersistence connects to uri and verifies the connection with a ping.
func NewPersistence(ctx context.Context, logger *slog.Logger, uri, database string) (*Persistence, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)

	return &Persistence{
		client:    client,
		db:        db,
		logger:    logger.With("module", "mongodb_persistence"),
		workflows: &WorkflowRepository{collection: db.Collection(WorkflowsCollection)},
		instances: &WorkflowInstanceRepository{collection: db.Collection(WorkflowInstancesCollection)},
		stats:     &ExecutionStatsRepository{collection: db.Collection(ExecutionStatsCollection)},
		payloads:  &PayloadRepository{collection: db.Collection(PayloadsCollection)},
		artifacts: &ArtifactReceivedRepository{collection: db.Collection(ArtifactReceivedItemsCollection)},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return p.instances
}

func (p *Persistence) ExecutionStatsRepository() persistence.ExecutionStatsRepository {
	return p.stats
}

func (p *Persistence) PayloadRepository() persistence.PayloadRepository {
	return p.payloads
}

func (p *Persistence) ArtifactReceivedRepository() persistence.ArtifactReceivedRepository {
	return p.artifacts
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx, nil)
}

func (p *Persistence) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (p *Persistence) Drop(ctx context.Context) error {
	return p.db.Drop(ctx)
}

func findOptions(sort bson.D, paging persistence.Paging) *options.FindOptions {
	opts := options.Find().SetSort(sort)

	if skip := paging.Skip(); skip > 0 {
		opts.SetSkip(skip)
	}

	if limit := paging.Limit(); limit > 0 {
		opts.SetLimit(limit)
	}

	return opts
}
