// Command flashkv-server is the minimal HTTP front-end from spec.md §6:
// GET /<key> and POST /<key> against a flashkv database, grounded on
// original_source/src/bin/server.rs's request dispatch but served over
// go-chi/chi instead of a hand-rolled TCP loop.
package main

import (
	"errors"
	"flag"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	flashkvconfig "github.com/flashdb/flashkv/config"
	"github.com/flashdb/flashkv/database"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashkv_server_requests_total",
		Help: "Total HTTP requests handled by flashkv-server, by method and status.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "flashkv_server_request_duration_seconds",
		Help: "Latency of flashkv-server HTTP requests.",
	}, []string{"method"})
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	dirFlag := flag.String("dir", "", "database directory (overrides config)")
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg := flashkvconfig.Default()
	if *configPath != "" {
		loaded, err := flashkvconfig.Load(*configPath)
		if err != nil {
			zap.L().Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}
	if *dirFlag != "" {
		cfg.Dir = *dirFlag
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts, err := cfg.DatabaseOptions(logger)
	if err != nil {
		logger.Fatal("failed to build database options", zap.Error(err))
	}

	db, err := database.Open(cfg.Dir, opts...)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	locked := database.NewLocked(db)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Route("/{key}", func(r chi.Router) {
		r.Get("/", handleGet(locked))
		r.Post("/", handlePost(locked))
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	logger.Info("flashkv-server listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, req)

		requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(req.Method, http.StatusText(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func handleGet(db *database.Locked) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		value, ok, err := db.Get(key)
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		case !ok:
			http.Error(w, "Key not found!", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(value))
		}
	}
}

func handlePost(db *database.Locked) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		if r.ContentLength < 0 {
			http.Error(w, "missing Content-Length", http.StatusBadRequest)
			return
		}

		buf := make([]byte, r.ContentLength)
		if _, err := io.ReadFull(r.Body, buf); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "unable to read content: "+err.Error(), http.StatusBadRequest)
			return
		}

		if !utf8.Valid(buf) {
			http.Error(w, "unable to read content: invalid utf-8", http.StatusBadRequest)
			return
		}

		if err := db.Set(key, string(buf)); err != nil {
			http.Error(w, "Oops! Something went wrong.", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
		w.Write(buf)
	}
}
