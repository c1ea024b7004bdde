package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tclaveria/concierge/internal/api"
	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/engine"
	"github.com/tclaveria/concierge/internal/intent"
	"github.com/tclaveria/concierge/internal/orchestrator"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/internal/session"
	"github.com/tclaveria/concierge/internal/state"
)

// runtime bundles everything a command needs to process requests.
type runtime struct {
	ctrl     *orchestrator.Controller
	registry *registry.Registry
	tracker  *api.TokenTracker
	closers  []func() error
}

// Close releases the runtime's resources in reverse construction order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// buildRuntime wires the full controller stack from configuration: catalog,
// classifier client, resolver, engine with the demo handlers, session store
// (SQLite-backed when a db path is configured), and event emitter.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{registry: registry.New()}

	if err := registry.RegisterCatalog(rt.registry, cfg.Catalog.Path); err != nil {
		return nil, fmt.Errorf("load capability catalog: %w", err)
	}
	if cfg.Catalog.Watch {
		watcher, err := registry.NewWatcher(rt.registry, cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, watcher.Close)
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.tracker = client.Tracker()

	var persist session.Persistence
	if cfg.Session.DBPath != "" {
		db, err := state.Open(cfg.Session.DBPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		persist = db
	}

	resolver := intent.NewResolver(client, cfg.Resolver)
	eng := engine.New(cfg.Engine)
	registerDemoHandlers(eng)
	store := session.NewStore(persist, cfg.Session.BusyPolicy)

	rt.ctrl = orchestrator.New(cfg, rt.registry, resolver, eng, store, orchestrator.NewEmitter(256))
	return rt, nil
}
