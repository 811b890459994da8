// Package compartment wires the relay hub into an HTTP server: configuration,
// logging, routes, CORS and graceful shutdown.
package compartment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/compartment/core"
	"github.com/putto11262002/compartment/pkg/router"
	"github.com/samber/lo"
)

type App struct {
	config  *Config
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *router.Router
	hub     *core.Hub

	roomHandler *RoomHandler

	exit chan int

	cleanupFuncs []func(context.Context)
}

// NewLogger returns the text logger used across the server, with source
// locations trimmed to the file name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))
}

// New builds the application. A nil ctx is replaced by one cancelled on
// SIGINT, SIGTERM, SIGQUIT or SIGHUP; a nil config is loaded with LoadConfig.
func New(ctx context.Context, config *Config) (*App, error) {
	app := &App{
		exit: make(chan int, 1),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}
	app.config = config

	app.logger = NewLogger(os.Stdout, config.LogLevel())

	app.hub = core.NewHub(
		core.WithLogger(app.logger.With(slog.String("component", "hub"))),
		core.WithBaseContext(app.context),
		core.WithSendBuffer(config.WS.SendBuffer),
		core.WithMaxMessageSize(config.WS.MaxMessageSize),
		core.WithCloseTimeout(config.WS.CloseTimeout),
		core.WithCheckOrigin(checkOrigin(config.AllowedOrigins)),
	)
	app.roomHandler = NewRoomHandler(app.hub.Registry())

	app.router = router.New(router.WithLogger(app.logger))
	app.router.RegisterErrorMapper(core.ErrMissingRoom,
		router.StatusError(http.StatusBadRequest, core.ErrMissingRoom))
	app.router.RegisterErrorMapper(core.ErrHubNotRunning,
		router.StatusError(http.StatusServiceUnavailable, core.ErrHubNotRunning))
	app.router.RegisterErrorMapper(core.ErrRoomNotFound,
		router.StatusError(http.StatusNotFound, core.ErrRoomNotFound))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", core.RoomHeader, core.RoleHeader},
		AllowCredentials: false,
	}))

	app.router.Get("/ws", app.hub.Connect)
	app.router.Get("/healthz", app.roomHandler.HealthHandler)
	app.router.Route("/api", func(r *router.Router) {
		r.Get("/rooms", app.roomHandler.ListRoomsHandler)
		r.Get("/rooms/{roomID}", app.roomHandler.GetRoomHandler)
	})

	app.server = &http.Server{
		Addr:    app.config.Addr(),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if app.config.tlsEnabled() {
		app.server.TLSConfig = newTLSConfig()
	}

	return app, nil
}

// checkOrigin accepts websocket handshakes from the allowed origins. Requests
// without an Origin header come from non browser clients and are accepted.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return lo.ContainsBy(allowed, func(o string) bool {
			return o == "*" || strings.EqualFold(o, origin)
		})
	}
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

func (app *App) Hub() *core.Hub {
	return app.hub
}

// Start runs the hub and the HTTP server until the app context is cancelled,
// then runs the cleanup functions and returns the exit code.
func (app *App) Start() int {
	app.hub.Start()
	app.AddCleanupFunc(func(ctx context.Context) {
		app.hub.Close()
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	cleanupFuncs := app.cleanupFuncs

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(),
			app.config.WS.CloseTimeout+5*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range cleanupFuncs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f(closeCtx)
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.logger.Info(fmt.Sprintf("app running on: %s (tls: %t)", app.config.Addr(), app.config.tlsEnabled()))

	var err error
	if app.config.tlsEnabled() {
		err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
	} else {
		err = app.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(fmt.Sprintf("server error: %v", err))
		return 1
	}

	return <-app.exit
}

// AddCleanupFunc registers f to run on shutdown. It must be called before Start.
func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}
