package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/activitymap"
	"github.com/goliatone/go-lazarus/config"
	"github.com/goliatone/go-lazarus/database"
	"github.com/goliatone/go-lazarus/httpapi"
	"github.com/goliatone/go-lazarus/mediastore"
	"github.com/goliatone/go-lazarus/redisbus"
	"github.com/goliatone/go-lazarus/zaplog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// realtimeBus is satisfied by the redis broadcaster and the local hub
type realtimeBus interface {
	lazarus.Broadcaster
	httpapi.LocationPublisher
}

type App struct {
	config    *config.AppConfig
	logger    *zaplog.Logger
	store     *database.Store
	repo      lazarus.RepositoryManager
	redis     *redis.Client
	hub       *redisbus.Hub
	bus       realtimeBus
	media     lazarus.MediaStore
	services  httpapi.Services
	scheduler *lazarus.ArchiveScheduler
	srv       router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) *zaplog.Logger {
	return a.logger.Named(name)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	lgr, err := zaplog.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.ServiceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer func() { _ = lgr.Sync() }()

	if !cfg.IsProduction() {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(redacted(cfg)))
		fmt.Println("============")
	}

	app := &App{config: cfg, logger: lgr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}
	defer app.store.Close()

	if err := WithRealtime(ctx, app); err != nil {
		lgr.Error("realtime setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithMedia(app); err != nil {
		lgr.Error("media setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithServices(ctx, app); err != nil {
		lgr.Error("service setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithScheduler(ctx, app); err != nil {
		lgr.Error("archive scheduler setup failed", "error", err)
		os.Exit(1)
	}

	WithHTTPServer(app)

	go func() {
		lgr.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := app.srv.Serve(cfg.Server.ListenAddr); err != nil {
			lgr.Error("http server stopped", "error", err)
			cancel()
		}
	}()

	select {
	case sig := <-waitExitSignal():
		lgr.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()

	if app.scheduler != nil {
		if err := app.scheduler.StopWithContext(shutdownCtx); err != nil {
			lgr.Warn("archive scheduler did not stop cleanly", "error", err)
		}
	}
	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Warn("http server did not stop cleanly", "error", err)
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	logger := app.GetLogger("database")
	store, err := database.Open(ctx, database.Options{
		Driver: app.config.Database.Driver,
		URL:    app.config.Database.URL,
		Debug:  app.config.Database.Debug,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	app.store = store

	if app.config.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		if report := store.Report(); report != "" {
			logger.Info("migrations applied", "report", report)
		}
	}

	repo := lazarus.NewRepositoryManager(store.DB())
	if err := repo.Validate(); err != nil {
		return err
	}
	app.repo = repo
	return nil
}

func WithRealtime(ctx context.Context, app *App) error {
	cfg := app.config.Redis
	logger := app.GetLogger("realtime")
	app.hub = redisbus.NewHub(logger)

	if !cfg.Enabled {
		logger.Info("redis disabled, realtime events stay on this node")
		app.bus = app.hub
		return nil
	}

	client, err := redisbus.NewClient(ctx, redisbus.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return err
	}
	app.redis = client
	app.bus = redisbus.New(client, cfg.Channel, logger)

	sub := redisbus.NewSubscriber(client, cfg.Channel, logger)
	go func() {
		if err := app.hub.Run(ctx, sub); err != nil {
			logger.Error("realtime subscriber stopped", "error", err)
		}
	}()
	return nil
}

func WithMedia(app *App) error {
	cfg := app.config.Media
	if !cfg.Enabled {
		return nil
	}
	store, err := mediastore.New(mediastore.Options{
		UploadURL:  cfg.UploadURL,
		DestroyURL: cfg.DestroyURL,
		APIKey:     cfg.APIKey,
		Folder:     cfg.Folder,
		Timeout:    cfg.Timeout,
		MaxFiles:   cfg.MaxFiles,
	}, app.GetLogger("media"))
	if err != nil {
		return err
	}
	app.media = store
	return nil
}

func WithServices(ctx context.Context, app *App) error {
	cfg := app.config
	repo := app.repo

	sink := activitymap.LogSink(app.GetLogger("activity"))

	notifier := lazarus.NewInboxNotifier(repo, lazarus.LogMailer{Logger: app.GetLogger("mail")}).
		WithLogger(app.GetLogger("notifier")).
		WithResetURL(cfg.Auth.ResetURL)

	resolver := lazarus.NewAuthResolver(repo.Identities()).
		WithLogger(app.GetLogger("resolver"))
	tokens := lazarus.NewTokenService(cfg, resolver, app.GetLogger("tokens")).
		WithClaimsDecorator(lazarus.ProfileClaims)
	auther := lazarus.NewAuthenticator(resolver, tokens).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(sink)

	register := lazarus.NewRegisterHandler(repo).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(app.GetLogger("register")).
		WithPhoneRegion(cfg.Auth.PhoneRegion)

	ledger := lazarus.NewStrikeLedger(repo, notifier).
		WithActivitySink(sink).
		WithLogger(app.GetLogger("strikes"))

	locations := lazarus.NewLocationRegistry()

	opts := []lazarus.LifecycleOption{
		lazarus.WithLifecycleActivitySink(sink),
		lazarus.WithLifecycleLogger(app.GetLogger("incidents")),
		lazarus.WithLifecycleNotifier(notifier),
		lazarus.WithLifecycleLocations(locations),
		lazarus.WithNearbyRadius(cfg.Incidents.NearbyRadiusKm),
	}
	opts = append(opts, lazarus.WithLifecycleBroadcaster(app.bus))
	if app.media != nil {
		opts = append(opts, lazarus.WithLifecycleMediaStore(app.media))
	}

	app.services = httpapi.Services{
		Auth:     auther,
		Register: register,
		Resets: lazarus.NewPasswordResetFlow(repo, resolver, notifier).
			WithActivitySink(sink).
			WithLogger(app.GetLogger("reset")).
			WithTTL(cfg.GetResetTokenExpiration()),
		Identities: lazarus.NewIdentityAdmin(repo).
			WithActivitySink(sink).
			WithLogger(app.GetLogger("identities")),
		Strikes:   ledger,
		Incidents: lazarus.NewIncidentLifecycle(repo, ledger, opts...),
		Notifications: lazarus.NewNotificationService(repo).
			WithActivitySink(sink).
			WithLogger(app.GetLogger("inbox")),
		Stats: lazarus.NewStatisticsService(repo),
		Archiver: lazarus.NewArchiver(repo).
			WithActivitySink(sink).
			WithLogger(app.GetLogger("archive")).
			WithMaxAge(cfg.Incidents.ArchiveAfter),
		Locations: locations,
	}

	return seedAdmin(ctx, app, register)
}

func seedAdmin(ctx context.Context, app *App, register *lazarus.RegisterHandler) error {
	boot := app.config.Bootstrap
	if boot.AdminEmail == "" || boot.AdminPassword == "" {
		return nil
	}

	identity, created, err := register.SeedAdmin(ctx, lazarus.RegisterAdminMessage{
		FirstName: boot.AdminFirstName,
		LastName:  boot.AdminLastName,
		Email:     boot.AdminEmail,
		Password:  boot.AdminPassword,
	})
	if err != nil {
		return err
	}
	if created {
		app.GetLogger("bootstrap").Info("bootstrap admin created", "id", identity.ID(), "email", identity.Email())
	}
	return nil
}

func WithScheduler(ctx context.Context, app *App) error {
	if !app.config.Incidents.ArchiveEnabled {
		return nil
	}
	scheduler, err := lazarus.NewArchiveScheduler(
		app.services.Archiver,
		app.config.Incidents.ArchiveSchedule,
		app.GetLogger("scheduler"),
	)
	if err != nil {
		return err
	}
	if err := scheduler.StartWithContext(ctx); err != nil {
		return err
	}
	app.scheduler = scheduler
	return nil
}

func WithHTTPServer(app *App) {
	cfg := app.config.Server

	opts := []httpapi.Option{
		httpapi.WithLogger(app.GetLogger("http")),
		httpapi.WithDebug(!app.config.IsProduction()),
		httpapi.WithLocationPublisher(app.bus),
		httpapi.WithStreamHub(app.hub),
	}

	controller := httpapi.NewController(app.services, opts...)
	app.srv = httpapi.NewServer(controller, fiber.Config{
		AppName:      "lazarus",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
	})
	app.srv.Router().WithLogger(app.GetLogger("router"))
}

// redacted hides secrets before printing the configuration
func redacted(cfg *config.AppConfig) config.AppConfig {
	out := *cfg
	out.Auth.SigningKey = "***"
	out.Redis.Password = ""
	out.Media.APIKey = ""
	out.Bootstrap.AdminPassword = ""
	return out
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
