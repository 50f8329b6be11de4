package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"room-broker/internal/auth"
	"room-broker/internal/broker"
	"room-broker/internal/liveserver"
	"room-broker/internal/platform/config"
	"room-broker/internal/platform/logger"
	"room-broker/internal/platform/metrics"
	"room-broker/internal/quicklinks"
	"room-broker/internal/session"
	"room-broker/internal/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

// defaultServers is used when no live servers file exists.
var defaultServers = []liveserver.LiveServer{
	liveserver.New("us-1", "us1.spooderfy.com", "us-live-1.spooderfy.com"),
	liveserver.New("us-2", "us2.spooderfy.com", "us-live-2.spooderfy.com"),
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile string
	flagSet := pflag.NewFlagSet("room-broker", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to a .env file (missing file is ignored)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	_ = config.Load(envFile)
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	log := logger.New(settings.LogLevel, settings.LogFormat)
	met := metrics.New()

	servers, err := loadServers(settings.LiveServersFile, log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	dir, err := broker.OpenDirectory(ctx, broker.DirectoryConfig{
		Backend:    settings.DirectoryBackend,
		SQLitePath: settings.SQLitePath,
		Redis: broker.RedisConfig{
			Addr:     settings.RedisAddr,
			Username: settings.RedisUsername,
			Password: settings.RedisPassword,
		},
	}, log)
	if err != nil {
		return err
	}
	defer dir.Close()

	client := upstream.NewHTTPClient(settings.UpstreamTimeout)
	svc := broker.NewService(broker.Deps{
		Directory:     dir,
		Servers:       servers,
		Allocator:     &upstream.ControlPlane{Client: client, Token: settings.LiveServerAuth},
		Gateway:       &upstream.Gateway{Client: client, BaseURL: settings.GatewayURL},
		PublicDomain:  settings.PublicDomain,
		RoomCacheTTL:  settings.RoomCacheTTL,
		StatsCacheTTL: settings.StatsCacheTTL,
		Logger:        log,
		Metrics:       met,
	})

	codec, err := session.NewCodec(settings.SecureKey, session.WithMaxAge(settings.SessionMaxAge))
	if err != nil {
		return err
	}
	cookieOpts := session.DefaultCookieOptions()
	cookieOpts.MaxAge = settings.SessionMaxAge
	cookieOpts.Secure = settings.CookieSecure

	provider := auth.NewOAuthProvider(auth.ProviderConfig{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURI:  settings.RedirectURI,
		HTTPClient:   client,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			if n, err := svc.ActiveRoomCount(r.Context()); err == nil {
				met.SetActiveRooms(n)
			}
		}).ServeHTTP(w, r)
	})
	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(codec, cookieOpts, log, met.IncSessionsRejected))
		quicklinks.NewHandler(settings.BotInviteURL, settings.SupportURL, log).Routes(r)
		auth.NewHandler(provider, log).Routes(r)
		broker.NewHandler(svc, settings.BotAuth, log).Routes(r)
	})

	srv := &http.Server{Addr: ":" + settings.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"directory_backend", settings.DirectoryBackend,
		"live_servers", len(servers.List()),
		"default_live_server", servers.Default().ID,
		"log_level", settings.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func loadServers(path string, log *slog.Logger) (*liveserver.Registry, error) {
	reg, err := liveserver.LoadFile(path)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	log.Warn("live servers file not found, using built-in servers", slog.String("path", path))
	reg = liveserver.NewRegistry(defaultServers[0])
	for _, s := range defaultServers[1:] {
		reg.Add(s)
	}
	return reg, nil
}
