package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/status"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/poller"
	"github.com/mikey/agenda-relay/internal/ports"
)

// ServiceFactory creates the long-running services of the daemon
type ServiceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePoller creates the polling scheduler
func (f *ServiceFactory) CreatePoller(runner ports.CycleRunner, journal core.Journal) (*poller.Poller, error) {
	pc, err := f.cfg.GetPoller()
	if err != nil {
		return nil, fmt.Errorf("invalid poller configuration: %w", err)
	}
	return poller.New(runner, journal, poller.Options{
		Enabled:    pc.Enabled,
		Interval:   pc.Interval,
		RunOnStart: pc.RunOnStart,
	}, f.logger.Named("poller"))
}

// CreateServices returns the services to start, in start order
func (f *ServiceFactory) CreateServices(p *poller.Poller, journal core.Journal) ([]ports.Service, error) {
	services := []ports.Service{p}

	sc, err := f.cfg.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("invalid status configuration: %w", err)
	}
	if sc.Enabled {
		services = append(services, status.NewServer(sc.ListenAddress, sc.ShutdownTimeout, p, journal, f.logger.Named("status")))
	}
	return services, nil
}
