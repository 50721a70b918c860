package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/config"
)

// BuildCLIContainer creates a container for the CLI from an already loaded configuration.
// Adapters are built lazily, so a command only needs the settings it actually uses.
func BuildCLIContainer(cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() *zap.Logger { return logger }); err != nil {
		return nil, err
	}

	if err := registerPipeline(container); err != nil {
		return nil, err
	}

	return container, nil
}
