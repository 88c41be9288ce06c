package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	v1 "github.com/ticketbridge/ticketbridge/pkg/api/v1"
	"github.com/ticketbridge/ticketbridge/pkg/appticket"
	"github.com/ticketbridge/ticketbridge/pkg/authority"
	"github.com/ticketbridge/ticketbridge/pkg/config"
	"github.com/ticketbridge/ticketbridge/pkg/logger"
	"github.com/ticketbridge/ticketbridge/pkg/resolver"
	"github.com/ticketbridge/ticketbridge/pkg/session"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication bridge server",
	Long: `Start the authentication bridge server. The server acquires and maintains
the app ticket in the background and exposes the /authenticate routes.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 35 * time.Second // must outlive the authority request timeout
	serverIdleTimeout      = 60 * time.Second
)

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Infow("connecting to authority", "url", cfg.AuthorityURL, "app", cfg.AppID)

	client, err := authority.NewClient(cfg.AuthorityURL, cfg.AppID, ticket.NewHawkSigner(),
		authority.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}

	manager := appticket.NewManager(client, cfg.AppCredential(),
		appticket.WithTicketBuffer(cfg.TicketBuffer),
		appticket.WithRetryInterval(cfg.RetryInterval))
	client.OnExpiredTicket(manager.Reacquire)

	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("app ticket manager stopped", "error", err)
		}
	}()

	res := resolver.New(client, manager, resolver.Config{
		AllowAssertions: cfg.AllowAssertions,
		AllowVouchers:   cfg.AllowVouchers,
		AllowBearer:     cfg.AllowBearer,
		SignRSVP:        cfg.SignRSVP,
	})

	var store session.Store
	if cfg.RedisAddr != "" {
		store, err = session.NewRedisStore(ctx, session.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			KeyPrefix: "tbridge:" + session.SlotName(cfg.AppID) + ":",
		})
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Infow("using redis session store", "addr", cfg.RedisAddr)
	}

	cookie := &v1.TicketCookie{Name: session.SlotName(cfg.AppID)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Mount("/authenticate", v1.AuthRouter(res, cookie, store))
	r.Mount("/permissions", v1.PermissionsRouter(res, cookie, store, v1.MiddlewareConfig{}))

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
