// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/di"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	// EthClient is nil when no ethereum.http_url is configured.
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Stopper is implemented by modules that own resources to release on shutdown.
type Stopper interface {
	Shutdown(Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New creates a new Monolith instance. The RPC client is only dialled when an HTTP endpoint
// is configured; snapshot-only runs never touch the network here.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	assetRegistry := asset.DefaultRegistry()
	container := di.NewContainer()

	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("assetRegistry", assetRegistry)

	a := &app{
		config:        cfg,
		logger:        log,
		assetRegistry: assetRegistry,
		container:     container,
	}

	if cfg.Ethereum.HTTPURL != "" {
		client, err := ethclient.Dial(cfg.Ethereum.HTTPURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial ethereum node: %w", err)
		}
		a.ethClient = client
		container.Register("ethClient", client)
	}

	return a, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// StopModules shuts modules down in reverse start order and joins their errors.
func (a *app) StopModules(modules ...Module) error {
	var errs []error
	for i := len(modules) - 1; i >= 0; i-- {
		s, ok := modules[i].(Stopper)
		if !ok {
			continue
		}
		if err := s.Shutdown(a); err != nil {
			a.logger.Error(context.Background(), "module shutdown failed", "module", fmt.Sprintf("%T", modules[i]), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all resources.
func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return nil
}
