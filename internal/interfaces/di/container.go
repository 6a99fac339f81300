package di

import (
	"context"
	"fmt"
	"time"

	"casestream.ai/cli/internal/application/ports"
	"casestream.ai/cli/internal/application/services"
	"casestream.ai/cli/internal/config"
	"casestream.ai/cli/internal/infrastructure/api"
	"casestream.ai/cli/internal/infrastructure/logging"
	transportinfra "casestream.ai/cli/internal/infrastructure/transport"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config

	// Infrastructure
	Logger     *logging.ConsoleLogger
	APIGateway *api.CaseStreamAPIGateway
	Transport  *transportinfra.SSETransport

	// Application services
	StreamingService *services.StreamingService
}

// Options are CLI-level overrides applied on top of the resolved
// configuration.
type Options struct {
	ConfigPath  string
	APIEndpoint string
	APIToken    string
	Debug       bool
}

// NewContainer creates and configures the dependency injection container
func NewContainer(opts Options) (*Container, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.APIEndpoint != "" {
		cfg.APIEndpoint = opts.APIEndpoint
	}
	if opts.APIToken != "" {
		cfg.APIToken = opts.APIToken
	}
	if opts.Debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{Config: cfg}
	c.initializeComponents()
	return c, nil
}

func (c *Container) initializeComponents() {
	c.Logger = logging.NewConsoleLogger(ports.ParseLogLevel(c.Config.LogLevel))
	c.APIGateway = api.NewCaseStreamAPIGateway(c.Config.APIEndpoint, c.Config.APIToken, c.Logger)
	c.Transport = transportinfra.NewSSETransport()
	c.StreamingService = services.NewStreamingService(c.Config.APIEndpoint, c.Transport, c.Logger)

	c.Logger.Log(ports.LogLevelDebug, "dependency container initialized", map[string]interface{}{
		"endpoint": c.Config.APIEndpoint,
	})
}

// StreamOptions builds the streaming session options from configuration
func (c *Container) StreamOptions() services.StreamOptions {
	return services.StreamOptions{
		Timeout:           c.Config.StreamTimeout,
		MaxRetries:        c.Config.MaxRetries,
		InitialRetryDelay: c.Config.InitialRetryDelay,
		BackoffMultiplier: c.Config.BackoffMultiplier,
		MaxRetryDelay:     c.Config.MaxRetryDelay,
		BufferSize:        c.Config.BufferSize,
	}
}

// Shutdown gracefully releases long-lived resources. The context bounds
// the disconnect of any live stream.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.StreamingService != nil {
		c.StreamingService.Disconnect()
	}

	// Give in-flight reader goroutines a moment to observe the close.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return nil
}
