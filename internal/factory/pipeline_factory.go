package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/forwarder"
	"github.com/mikey/agenda-relay/internal/adapters/mailparse"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/utils"
	"github.com/mikey/agenda-relay/internal/whitelist"
)

// PipelineFactory creates the message handling components of the pipeline
type PipelineFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger) *PipelineFactory {
	return &PipelineFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: utils.NewTextProcessor(logger),
	}
}

// CreateTextProcessor returns the shared text processor
func (f *PipelineFactory) CreateTextProcessor() *utils.TextProcessor {
	return f.textProcessor
}

// CreateParser creates the MIME message parser
func (f *PipelineFactory) CreateParser() *mailparse.Parser {
	return mailparse.NewParser(f.textProcessor, f.cfg.GetBody().HTMLToText, f.logger)
}

// CreateDomainFilter creates the sender domain checker
func (f *PipelineFactory) CreateDomainFilter() *whitelist.Checker {
	domains := f.cfg.GetFilter().AuthorizedDomains
	if len(domains) > 0 {
		f.logger.Info("Loaded authorized domains", zap.Strings("domains", domains))
	}
	return whitelist.NewChecker(domains, f.logger)
}

// CreateForwarder creates the HTTP forwarder
func (f *PipelineFactory) CreateForwarder() (*forwarder.HTTPForwarder, error) {
	fc, err := f.cfg.GetForwarder()
	if err != nil {
		return nil, fmt.Errorf("invalid forwarder configuration: %w", err)
	}
	if fc.Endpoint == "" {
		return nil, fmt.Errorf("forwarder.endpoint is required")
	}
	return forwarder.NewHTTPForwarder(fc.Endpoint, fc.Timeout, fc.UserAgent, fc.MaxBodySize, f.logger, f.textProcessor), nil
}
