// Package app wires the application's dependencies together.
package app

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/config"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/providers/factory"
	"github.com/openmeet/ai-router/providers/local"
	"github.com/openmeet/ai-router/routing"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *providers.Registry
	Router   *routing.Manager
	Store    *config.Store
	Validate *validator.Validate
}

// NewDependencies initializes the provider registry from the persisted
// configuration document and builds the routing manager on top of it.
// engines supplies local inference runtimes; pass an empty value when only
// hosted providers run.
func NewDependencies(cfg *config.Config, logger *zap.Logger, engines local.Engines) (*Dependencies, error) {
	strategy, err := routing.ParseStrategy(cfg.Routing.Strategy)
	if err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}

	registry := providers.NewRegistry(factory.New(logger, engines), logger.Named("registry"))

	router := routing.NewManager(registry, strategy, logger.Named("routing"))
	router.SetHealthTimeout(cfg.Routing.HealthTimeout)

	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Router:   router,
		Store:    config.NewStore(cfg.ProviderConfigPath, logger.Named("config")),
		Validate: validator.New(),
	}

	doc, err := deps.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load provider config: %w", err)
	}
	if err := deps.ApplyDocument(doc); err != nil {
		return nil, err
	}

	logger.Info("all dependencies initialized",
		zap.Int("providers", registry.Count()),
		zap.String("strategy", string(strategy)))
	return deps, nil
}

// ApplyDocument registers every provider in doc and reassigns capability
// defaults. Existing registrations for the same types are replaced.
func (d *Dependencies) ApplyDocument(doc *config.Document) error {
	for pt, providerCfg := range doc.Providers {
		if err := d.Registry.Register(providerCfg); err != nil {
			// One bad provider must not take the rest down.
			d.Logger.Error("failed to register provider",
				zap.String("provider", string(pt)), zap.Error(err))
			continue
		}
	}

	registered := make(map[providers.ProviderType]bool)
	for _, p := range d.Registry.List() {
		registered[p.Type()] = true
	}

	for capability, pt := range config.DefaultCapabilityAssignments(registered) {
		if err := d.Registry.SetDefault(capability, pt); err != nil {
			return fmt.Errorf("set default for %s: %w", capability, err)
		}
	}
	return nil
}

// Reload re-reads the persisted document and hot-swaps the provider set.
// Requests in flight keep their candidate snapshots.
func (d *Dependencies) Reload() error {
	doc, err := d.Store.Load()
	if err != nil {
		return fmt.Errorf("reload provider config: %w", err)
	}
	if err := d.ApplyDocument(doc); err != nil {
		return err
	}
	d.Logger.Info("provider configuration reloaded", zap.Int("providers", d.Registry.Count()))
	return nil
}

// Close releases all resources, collecting every failure.
func (d *Dependencies) Close() error {
	var errs error

	for _, p := range d.Registry.List() {
		if err := d.Registry.Unregister(p.Type()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	// Sync flushes buffered log entries; stderr may legitimately refuse.
	_ = d.Logger.Sync()

	return errs
}
