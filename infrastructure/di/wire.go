//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/application/services"
	"storyweave-backend/infrastructure/config"
	"storyweave-backend/infrastructure/messaging/eventbridge"
	"storyweave-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Collector
	Registry      *services.RoomRegistry
	Engine        *services.CollaborationEngine
	EventStore    ports.EventStore
	ReplayService *services.ReplayService
	EventLogger   *services.EventLogger
	Publisher     *eventbridge.Publisher
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideMetrics,
	ProvideEventStore,
	ProvideRoomRegistry,
	ProvideCollaborationEngine,
	ProvideReplayService,
	ProvideEventLogger,
	ProvidePublisher,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
