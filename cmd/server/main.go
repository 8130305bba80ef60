package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/config"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/handlers"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/lifecycle"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/middleware"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/migration"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/ratelimit"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/realtime"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/routes"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal/activities"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
	guard          *ratelimit.Limiter
	hub            *realtime.Hub
	notifications  notification.Service
	machine        lifecycle.Machine
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewAdapter(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Repositories shared across services and the worker.
	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		Logger: temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Realtime hub and the dispatcher that fans events out to it.
	hub := realtime.NewHub(logger)
	deliverer := temporal.NewDeliveryStarter(temporalClient)
	notificationService := notification.NewService(
		notificationRepo, issueRepo, userRepo, hub, deliverer, cfg.Notifications.TTL, logger)

	// Lifecycle state machine drives all issue mutations.
	machine := lifecycle.NewMachine(issueRepo, userRepo, notificationService, hub, logger)

	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
		guard:          ratelimit.New(),
		hub:            hub,
		notifications:  notificationService,
		machine:        machine,
	}

	// Root context cancels the realtime router and background loops on
	// shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Route socket events into the state machine and dispatcher.
	socketRouter := realtime.NewRouter(hub, machine, notificationService, logger)
	go socketRouter.Run(ctx)

	// Periodically purge expired notifications.
	go app.runNotificationGC(ctx)

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(userRepo, notificationRepo, logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(userRepo, issueRepo, logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(userRepo repository.UserRepository, issueRepo repository.IssueRepository, logger zerolog.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(userRepo, app.config, app.guard, logger)
	userHandler := handlers.NewUserHandler(userRepo, logger)
	issueHandler := handlers.NewIssueHandler(issueRepo, app.machine, app.notifications, app.guard, app.config, logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, logger)

	handshake := realtime.NewHandshakeHandler(
		app.hub,
		realtime.NewJWTAuthenticator(app.config.JWTSecret),
		app.guard,
		app.config.RateLimits.ConnectMax,
		app.config.RateLimits.ConnectWindow,
		app.config.AllowedOrigins,
		logger,
	)

	return routes.NewRouter(authHandler, userHandler, issueHandler, notificationHandler, handshake)
}

func (app *application) startTemporalWorker(userRepo repository.UserRepository, notificationRepo repository.NotificationRepository, logger zerolog.Logger) worker.Worker {
	emailNotifier, err := notification.NewEmailNotifier(app.config.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure email notifier")
	}
	smsNotifier := notification.NewSMSNotifier(app.config.SMS, logger)

	activityImpl := &activities.Activities{
		Notifications: notificationRepo,
		Users:         userRepo,
		Notifiers: map[models.Channel]notification.ChannelNotifier{
			models.ChannelEmail: emailNotifier,
			models.ChannelSMS:   smsNotifier,
		},
		Logger: logger,
	}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.DeliveryWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// runNotificationGC deletes expired notification records on the configured
// interval.
func (app *application) runNotificationGC(ctx context.Context) {
	ticker := time.NewTicker(app.config.Notifications.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := app.notifications.DeleteExpired(ctx)
			if err != nil {
				app.logger.Error().Err(err).Msg("notification GC failed")
				continue
			}
			if deleted > 0 {
				app.logger.Info().Int64("deleted", deleted).Msg("purged expired notifications")
			}
		}
	}
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
