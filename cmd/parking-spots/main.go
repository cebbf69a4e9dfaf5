package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-spots/internal/auth"
	"parking-spots/internal/config"
	"parking-spots/internal/gate"
	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
	"parking-spots/internal/server"
	"parking-spots/internal/telemetry"
)

type app struct {
	cfg        *config.Config
	telemetry  *telemetry.Provider
	store      *parking.InstrumentedRegistry
	gatekeeper *parking.Gatekeeper
	signals    *gate.AsyncSignaler
	detector   parking.Detector
	authz      auth.Authorizer
}

func main() {
	cfg := config.Load()

	mode := flag.String("mode", cfg.Mode, "Mode to run: cli, server, or both")
	port := flag.String("port", cfg.Port, "Port for HTTP server")
	flag.Parse()
	cfg.Mode = *mode
	cfg.Port = *port

	logging.Init(cfg.OTelServiceName, cfg.IsDevelopment())
	log := logging.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch cfg.Mode {
	case "cli":
		a.runCLI(ctx, cancel, sigChan)
	case "server":
		a.runServer(ctx, cancel, sigChan)
	case "both":
		a.runBoth(ctx, cancel, sigChan)
	default:
		log.Fatal().Str("mode", cfg.Mode).Msg("invalid mode, must be cli, server, or both")
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var tp *telemetry.Provider
	if cfg.TelemetryEnabled {
		var err error
		tp, err = telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, cfg.Environment)
		if err != nil {
			return nil, err
		}
	} else {
		tp = telemetry.New(cfg.OTelServiceName, nil, nil)
	}

	var seed []*parking.Spot
	if cfg.SeedSpots {
		seed = parking.SeedSpots()
	}
	store, err := parking.NewInstrumentedRegistry(parking.NewRegistry(seed...), tp)
	if err != nil {
		return nil, err
	}

	var signaler parking.Signaler = gate.NewLogSignaler()
	if cfg.GateControllerURL != "" {
		signaler = gate.NewHTTPSignaler(cfg.GateControllerURL, cfg.GateSignalRetries)
	}
	signals := gate.NewAsyncSignaler(signaler, 64)

	var authz auth.Authorizer = auth.NewStaticAuthorizer(cfg.AdminEmail)
	if cfg.AuthMode == "jwt" {
		authz = auth.NewJWTAuthorizer(cfg.AdminEmail, cfg.JWTSecret, cfg.JWTTTL)
	}

	logging.Info(ctx).
		Str("auth_mode", cfg.AuthMode).
		Bool("gate_controller", cfg.GateControllerURL != "").
		Bool("telemetry", cfg.TelemetryEnabled).
		Int("spots", len(seed)).
		Msg("parking spots service configured")

	return &app{
		cfg:        cfg,
		telemetry:  tp,
		store:      store,
		gatekeeper: parking.NewGatekeeper(store, signals),
		signals:    signals,
		detector:   parking.NewRandomDetector(),
		authz:      authz,
	}, nil
}

func (a *app) newShell() *parking.InstrumentedShell {
	return parking.NewInstrumentedShell(a.store, a.gatekeeper, a.detector, a.telemetry, os.Stdin, os.Stdout)
}

func (a *app) newServer() *server.Server {
	return server.NewServer(a.cfg.Port, a.cfg.OTelServiceName, a.store, a.gatekeeper, a.detector, a.authz)
}

func (a *app) runCLI(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	go func() {
		<-sigChan
		logging.Info(ctx).Msg("shutting down")
		cancel()
	}()

	a.newShell().Run(ctx)

	a.shutdownSignals()
	a.shutdownTelemetry()
}

func (a *app) runServer(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	srv := a.newServer()

	go func() {
		<-sigChan
		logging.Info(ctx).Msg("received shutdown signal")
		a.shutdownServer(srv)
		cancel()
	}()

	logging.Info(ctx).Str("port", a.cfg.Port).Msg("starting server mode")
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(ctx).Err(err).Msg("server error")
	}

	a.shutdownSignals()
	a.shutdownTelemetry()
}

func (a *app) runBoth(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	srv := a.newServer()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	cliDone := make(chan struct{})
	go func() {
		a.newShell().Run(ctx)
		close(cliDone)
	}()

	go func() {
		<-sigChan
		logging.Info(ctx).Msg("received shutdown signal")
		cancel()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-cliDone:
		logging.Info(ctx).Msg("CLI exited")
	case <-ctx.Done():
		logging.Info(ctx).Msg("context cancelled")
	}

	a.shutdownServer(srv)
	a.shutdownSignals()
	a.shutdownTelemetry()
}

func (a *app) shutdownServer(srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("server shutdown error")
	}
}

// shutdownSignals delivers gate commands still queued, giving up after the
// HTTP signaler's own retry window.
func (a *app) shutdownSignals() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer shutdownCancel()

	if err := a.signals.Close(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("gate commands left undelivered")
	}
}

func (a *app) shutdownTelemetry() {
	logging.Logger().Info().Msg("shutting down telemetry")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("error shutting down telemetry")
	}
}
