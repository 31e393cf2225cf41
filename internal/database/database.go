package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payflow/internal/config"
)

// ErrNotFound is returned when a job or item lookup matches nothing, or when
// a conditional update finds the record in an unexpected state.
var ErrNotFound = errors.New("not found")

type Database interface {
	Health() error
	Close(ctx context.Context) error

	BatchJobDatabase
	BatchItemDatabase
	DeadLetterDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	jobsCol        *mongo.Collection
	itemsCol       *mongo.Collection
	deadLettersCol *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	jobsCol := db.Collection("batch_jobs")
	jobIndexModels := []mongo.IndexModel{
		{
			// Index for status-based queries
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Index for sorting by creation date
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
	}

	itemsCol := db.Collection("batch_items")
	itemIndexModels := []mongo.IndexModel{
		{
			// Point lookups by (jobId, status), used for dead-letter listing
			// and the operator retry path
			Keys:    bson.D{{Key: "batch_job_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "batch_job_id", Value: 1}},
			Options: options.Index(),
		},
	}

	deadLettersCol := db.Collection("dead_letter_items")
	deadLetterIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batch_job_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "batch_item_id", Value: 1}},
			Options: options.Index(),
		},
	}

	if _, err := jobsCol.Indexes().CreateMany(context.Background(), jobIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "batch_jobs").Msg("Error creating indexes")
	}
	if _, err := itemsCol.Indexes().CreateMany(context.Background(), itemIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "batch_items").Msg("Error creating indexes")
	}
	if _, err := deadLettersCol.Indexes().CreateMany(context.Background(), deadLetterIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "dead_letter_items").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:         client,
		db:             db,
		jobsCol:        jobsCol,
		itemsCol:       itemsCol,
		deadLettersCol: deadLettersCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)
	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (m *mongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
