package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"unshub/internal/config"
	"unshub/pkg/logging"
)

// Application bootstraps and runs the hub. Construction follows a two-phase
// pattern: NewApplication loads configuration and wires the services, Run
// starts them and blocks until shutdown.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes an application instance: it
// configures logging, loads the configuration file, and builds the full
// service graph. Nothing is started yet.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(appLogLevel, logOutput)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	hubCfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	cfg.ConfigPath = configPath
	cfg.HubConfig = &hubCfg

	// The file may raise the level above the flag; the flag only lowers it.
	if !cfg.Debug {
		logging.InitForCLI(logging.ParseLevel(hubCfg.Logging.Level), logOutput)
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Run starts the hub and blocks until the context is cancelled or an
// interrupt signal arrives, then shuts everything down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	return runHub(ctx, a.config, a.services)
}

// Services exposes the wired component graph, mainly for the validate
// command and tests.
func (a *Application) Services() *Services {
	return a.services
}
