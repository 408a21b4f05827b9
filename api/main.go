package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/region-news-map/internal/catalog"
	"github.com/DeafMist/region-news-map/internal/config"
	"github.com/DeafMist/region-news-map/internal/elasticsearch"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/models"
	"github.com/DeafMist/region-news-map/internal/searchclient"
)

type newsStore interface {
	SearchNews(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := esClient.EnsureIndex(initCtx); err != nil {
		// Not fatal: the worker creates the index on its first start.
		log.Warn("ensure index", slog.Any("err", err))
	}
	cancel()

	srv := &server{log: log, cfg: cfg, store: esClient}
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
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

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	store newsStore
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get(searchclient.SearchPath, s.handleSearch)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	region := strings.TrimSpace(r.URL.Query().Get("region"))
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	if _, ok := catalog.LookupRegion(region); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown region: " + region})
		return
	}
	if _, ok := catalog.LookupCategory(category); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown category: " + category})
		return
	}

	result, err := s.store.SearchNews(ctx, elasticsearch.SearchParams{
		Region:   region,
		Category: category,
		Size:     clampInt(r.URL.Query().Get("size"), s.cfg.DefaultSize, s.cfg.MaxSize),
	})
	if err != nil {
		s.log.Error("search news",
			slog.String("region", region),
			slog.String("category", category),
			slog.Any("err", err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	news := make([]models.Article, 0, len(result.Items))
	for _, doc := range result.Items {
		news = append(news, doc.ToArticle())
	}
	writeJSON(w, http.StatusOK, models.SearchResponse{News: news})
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
