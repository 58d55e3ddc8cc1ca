package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/thesantatitan/graphtabs/browser"
	"github.com/thesantatitan/graphtabs/dbopen"
	"github.com/thesantatitan/graphtabs/graph"
	"github.com/thesantatitan/graphtabs/thumbcache"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		remote     = flag.String("remote", "", "remote browser debug URL (overrides config)")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	)
	flag.Parse()

	cfg := &Config{}
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
	}
	cfg.defaults()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *remote != "" {
		cfg.Browser.RemoteURL = *remote
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(thumbcache.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.RemoteURL,
		Headful:   cfg.Browser.Headful,
		Logger:    logger,
	})
	b, err := mgr.Start(ctx)
	if err != nil {
		slog.Error("start browser", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	tabs := browser.NewTabs(b, logger)

	g := graph.New()
	svc := thumbcache.New(db, tabs, cfg.ThumbcacheConfig(), logger)
	defer svc.Close()

	if err := svc.Hydrate(ctx); err != nil {
		slog.Error("hydrate thumbnails", "error", err)
		os.Exit(1)
	}

	// The graph must see events first so captures resolve against
	// up-to-date tab state.
	tabs.OnEvent(g)
	tabs.OnEvent(svc)

	if err := tabs.Watch(ctx); err != nil {
		slog.Error("watch targets", "error", err)
		os.Exit(1)
	}

	// Drop hydrated entries whose tabs did not survive the restart.
	svc.Prune(ctx, tabs.LiveTabIDs())

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	g.RegisterHTTP(r)
	svc.RegisterHTTP(r)
	r.Post("/tabs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}
		id, err := tabs.Open(req.Context(), body.URL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"tab_id": id})
	})
	r.Delete("/tabs/{tabID}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(req, "tabID"))
		if err != nil {
			http.Error(w, "invalid tab id", http.StatusBadRequest)
			return
		}
		if err := tabs.CloseTab(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/tabs/{tabID}/activate", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(req, "tabID"))
		if err != nil {
			http.Error(w, "invalid tab id", http.StatusBadRequest)
			return
		}
		if err := tabs.Activate(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "graphtabs",
		Version: "1.0.0",
	}, nil)
	g.RegisterMCP(mcpSrv)
	svc.RegisterMCP(mcpSrv)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpSrv
	}, nil))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
