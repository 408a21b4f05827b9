package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/region-news-map/internal/config"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/mapview"
	"github.com/DeafMist/region-news-map/internal/newsmap"
	"github.com/DeafMist/region-news-map/internal/searchclient"
	"github.com/DeafMist/region-news-map/internal/web"
)

func main() {
	log := logger.New("web")
	cfg, err := config.LoadWeb()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	searcher := newSearchClient(cfg)
	provider := mapview.NewMemory()

	sessions := web.NewSessions(cfg.SessionCapacity, cfg.SessionTTL, pageFactory(cfg, provider, searcher, log), log)

	srv, err := web.NewServer(log, sessions, cfg.MapClientID)
	if err != nil {
		log.Error("init server", slog.Any("err", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SearchTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go sweepSessions(ctx, sessions, time.Minute)

	go func() {
		log.Info("web server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("search_base_url", cfg.SearchBaseURL),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

func newSearchClient(cfg *config.Web) *searchclient.Client {
	hc := &http.Client{
		Timeout: cfg.SearchTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	return searchclient.New(cfg.SearchBaseURL, cfg.SearchTimeout, searchclient.WithHTTPClient(hc))
}

// pageFactory builds session pages opening at the configured map view.
func pageFactory(cfg *config.Web, provider mapview.Provider, searcher newsmap.Searcher, log *slog.Logger) func(newsmap.Notifier) *newsmap.Page {
	return func(n newsmap.Notifier) *newsmap.Page {
		return newsmap.New(provider, searcher,
			newsmap.WithLogger(log),
			newsmap.WithNotifier(n),
			newsmap.WithContainerID(cfg.MapContainerID),
			newsmap.WithInitialView(cfg.MapCenter, cfg.MapZoom),
			newsmap.WithFocusZoom(cfg.MapFocusZoom),
		)
	}
}

func sweepSessions(ctx context.Context, sessions *web.Sessions, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep()
		}
	}
}
