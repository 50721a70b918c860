package di

import (
	"go.uber.org/dig"

	"github.com/mikey/agenda-relay/internal/adapters/journal"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/factory"
	"github.com/mikey/agenda-relay/internal/logging"
	"github.com/mikey/agenda-relay/internal/poller"
	"github.com/mikey/agenda-relay/internal/ports"
)

// BuildContainer creates and configures the dependency injection container of the daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := registerPipeline(container); err != nil {
		return nil, err
	}

	// Register journal
	if err := container.Provide(factory.NewJournalFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.JournalFactory) (journal.Journal, error) {
		return f.CreateJournal()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(j journal.Journal) core.Journal {
		return j
	}); err != nil {
		return nil, err
	}

	// Register poller and services
	if err := container.Provide(factory.NewServiceFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ServiceFactory, runner ports.CycleRunner, j core.Journal) (*poller.Poller, error) {
		return f.CreatePoller(runner, j)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ServiceFactory, p *poller.Poller, j core.Journal) ([]ports.Service, error) {
		return f.CreateServices(p, j)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// registerPipeline provides everything needed to run a cycle, given a config and a logger
func registerPipeline(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewPipelineFactory); err != nil {
		return err
	}

	// Register adapters
	if err := container.Provide(func(f *factory.MailboxFactory) (core.Mailbox, error) {
		return f.CreateMailbox()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.PipelineFactory) core.MessageParser {
		return f.CreateParser()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.PipelineFactory) core.DomainFilter {
		return f.CreateDomainFilter()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.PipelineFactory) (core.Forwarder, error) {
		return f.CreateForwarder()
	}); err != nil {
		return err
	}

	// Register ingestion service
	if err := container.Provide(core.NewIngestionService); err != nil {
		return err
	}
	return container.Provide(func(s *core.IngestionService) ports.CycleRunner {
		return s
	})
}
