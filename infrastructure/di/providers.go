package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/application/services"
	"storyweave-backend/infrastructure/config"
	"storyweave-backend/infrastructure/messaging/eventbridge"
	dynamostore "storyweave-backend/infrastructure/persistence/dynamodb"
	memorystore "storyweave-backend/infrastructure/persistence/memory"
	sqlitestore "storyweave-backend/infrastructure/persistence/sqlite"
	"storyweave-backend/infrastructure/persistence/resilience"
	"storyweave-backend/pkg/observability"
)

// ProvideLogger creates a logger instance for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client.
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client.
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the Prometheus collector.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector(cfg.MetricsNamespace)
}

// ProvideEventStore selects and constructs the configured durable-log
// backend. Durable backends are wrapped with a circuit breaker; the memory
// backend is not, since it cannot fail. When a publisher is configured the
// store is additionally decorated so appended events are forwarded to the
// bus.
func ProvideEventStore(cfg *config.Config, client *awsdynamodb.Client, publisher *eventbridge.Publisher, logger *zap.Logger) (ports.EventStore, error) {
	var store ports.EventStore

	switch cfg.StorageBackend {
	case "memory":
		store = memorystore.NewEventStore()
	case "sqlite":
		inner, err := sqlitestore.NewEventStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		store = resilience.NewBreakerStore(inner, logger)
	case "dynamodb":
		inner := dynamostore.NewEventStore(
			client,
			cfg.DynamoDBTable,
			cfg.EventTypeIndexName,
			cfg.ActivityIndexName,
			logger,
		)
		store = resilience.NewBreakerStore(inner, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}

	if publisher != nil {
		store = eventbridge.NewPublishingStore(store, publisher, logger)
	}
	return store, nil
}

// ProvideRoomRegistry creates the room registry.
func ProvideRoomRegistry(logger *zap.Logger) *services.RoomRegistry {
	return services.NewRoomRegistry(logger)
}

// ProvideCollaborationEngine creates the collaboration engine.
func ProvideCollaborationEngine(registry *services.RoomRegistry, metrics *observability.Collector, logger *zap.Logger) *services.CollaborationEngine {
	return services.NewCollaborationEngine(registry, metrics, logger)
}

// ProvideReplayService creates the replay/audit service.
func ProvideReplayService(store ports.EventStore, logger *zap.Logger) *services.ReplayService {
	return services.NewReplayService(store, logger)
}

// ProvideEventLogger creates the event logging helpers.
func ProvideEventLogger(store ports.EventStore, metrics *observability.Collector, logger *zap.Logger) *services.EventLogger {
	return services.NewEventLogger(store, metrics, logger)
}

// ProvidePublisher creates the EventBridge publisher when enabled.
func ProvidePublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) *eventbridge.Publisher {
	if !cfg.EnablePublisher {
		return nil
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}
