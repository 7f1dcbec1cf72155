// Package api provides the HTTP REST API and WebSocket server for
// HavenSync Core.
//
// It exposes the command surface (direct and management-API MQTT
// publishing, semantic device control) and the realtime push channel
// used by mobile and web clients.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/bridge"
	"github.com/hexahaven/havensync-core/internal/devices"
	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
	"github.com/hexahaven/havensync-core/internal/infrastructure/logging"
	"github.com/hexahaven/havensync-core/internal/infrastructure/mqtt"
	"github.com/hexahaven/havensync-core/internal/provisioning"
	"github.com/hexahaven/havensync-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandExecutor issues a semantic command to a device. Implemented by
// the transport bridge.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, userID, deviceID, action string, value *int) error
}

// Provisioner runs a BLE provisioning session. Implemented by the
// provisioning engine.
type Provisioner interface {
	Provision(ctx context.Context, creds provisioning.Credentials) (*provisioning.Result, error)
}

// BrokerClient is the slice of the MQTT client the REST surface uses.
type BrokerClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Broker is the direct MQTT connection. Optional; without it the
	// direct publish path returns 503.
	Broker BrokerClient

	// Management is the broker management API publish path. Optional.
	Management bridge.Publisher

	// Executor issues semantic device commands.
	Executor CommandExecutor

	// Provisioner runs BLE provisioning sessions. Optional.
	Provisioner Provisioner

	Cache      *state.Cache
	DeviceRepo devices.Repository
	AuditRepo  audit.Repository

	Version string
}

// Server is the HTTP API server for HavenSync Core.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	broker      BrokerClient
	management  bridge.Publisher
	executor    CommandExecutor
	provisioner Provisioner
	cache       *state.Cache
	deviceRepo  devices.Repository
	auditRepo   audit.Repository
	version     string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("state cache is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		broker:      deps.Broker,
		management:  deps.Management,
		executor:    deps.Executor,
		provisioner: deps.Provisioner,
		cache:       deps.Cache,
		deviceRepo:  deps.DeviceRepo,
		auditRepo:   deps.AuditRepo,
		version:     deps.Version,
	}, nil
}

// Hub returns the websocket hub, creating it on first use. The bridge
// uses this as its push broadcaster.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.ownerOf)
	}
	return s.hub
}

// ownerOf resolves the owning user for a device, for user-scope
// broadcast routing.
func (s *Server) ownerOf(deviceID string) (string, bool) {
	d, err := s.cache.Get(deviceID)
	if err != nil {
		return "", false
	}
	return d.UserID, true
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the websocket hub, and launches the
// listener in a background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	hub := s.Hub()
	go hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
