// Command trustwatch runs the vendor trust-page monitor: an HTTP API and
// optional MCP stdio server over a shared SQLite database and a managed
// headless Chrome.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/trustwatch/audit"
	"github.com/hazyhaar/trustwatch/dbopen"
	"github.com/hazyhaar/trustwatch/monitor"
	"github.com/hazyhaar/trustwatch/shield"
	"github.com/hazyhaar/trustwatch/webguard"
)

// fileConfig is the optional YAML configuration. Environment variables
// override file values.
type fileConfig struct {
	Port    string `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	Browser struct {
		RemoteURL       string        `yaml:"remote_url"`
		RecycleInterval time.Duration `yaml:"recycle_interval"`
		NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	} `yaml:"browser"`
	LLM struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`
	Archive struct {
		Months int `yaml:"months"`
		Limit  int `yaml:"limit"`
	} `yaml:"archive"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BROWSER_WS"); v != "" {
		cfg.Browser.RemoteURL = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if cfg.Port == "" {
		cfg.Port = "8090"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "db/trustwatch.db"
	}
	return cfg, nil
}

func main() {
	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(audit.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := monitor.ApplySchema(db); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}

	// Audit trail.
	trail := audit.NewTrail(db, 256)
	defer trail.Close()

	// Monitor service.
	svc, err := monitor.New(db, monitor.Config{
		Browser: monitor.BrowserConfig{
			RemoteURL:       cfg.Browser.RemoteURL,
			RecycleInterval: cfg.Browser.RecycleInterval,
			NavigateTimeout: cfg.Browser.NavigateTimeout,
		},
		LLM: monitor.LLMConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		},
		ArchiveMonths: cfg.Archive.Months,
		ArchiveLimit:  cfg.Archive.Limit,
	}, logger, monitor.WithAudit(trail))
	if err != nil {
		slog.Error("monitor service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		slog.Error("browser start", "error", err)
		os.Exit(1)
	}

	// MCP over stdio replaces the HTTP server entirely.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "trustwatch",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		slog.Info("MCP stdio starting")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio", "error", err)
			os.Exit(1)
		}
		return
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Vendors.
	r.Route("/api/vendors", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			vendors, err := svc.ListVendors(r.Context())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, vendors)
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Name    string `json:"name"`
				Website string `json:"website"`
				Notes   string `json:"notes"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			v, err := svc.CreateVendor(r.Context(), req.Name, req.Website, req.Notes)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, v)
		})
		r.Get("/{vendorID}", func(w http.ResponseWriter, r *http.Request) {
			v, err := svc.GetVendor(r.Context(), chi.URLParam(r, "vendorID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, v)
		})
		r.Delete("/{vendorID}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeleteVendor(r.Context(), chi.URLParam(r, "vendorID")); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
		r.Get("/{vendorID}/pages", func(w http.ResponseWriter, r *http.Request) {
			pages, err := svc.ListPages(r.Context(), chi.URLParam(r, "vendorID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, pages)
		})
		r.Post("/{vendorID}/pages", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				URL          string   `json:"url"`
				Label        string   `json:"label"`
				Fingerprints []string `json:"fingerprint_phrases"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			p, err := svc.AddPage(r.Context(), chi.URLParam(r, "vendorID"), req.URL, req.Label, req.Fingerprints)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, p)
		})
		r.Post("/{vendorID}/check", func(w http.ResponseWriter, r *http.Request) {
			results, err := svc.CheckVendorPages(r.Context(), chi.URLParam(r, "vendorID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, results)
		})
	})

	// Pages.
	r.Route("/api/pages/{pageID}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			p, err := svc.GetPage(r.Context(), chi.URLParam(r, "pageID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, p)
		})
		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeletePage(r.Context(), chi.URLParam(r, "pageID")); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
		r.Post("/check", func(w http.ResponseWriter, r *http.Request) {
			result, err := svc.CheckPage(r.Context(), chi.URLParam(r, "pageID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, result)
		})
		r.Post("/pause", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.PausePage(r.Context(), chi.URLParam(r, "pageID")); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "paused"})
		})
		r.Post("/resume", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.ResumePage(r.Context(), chi.URLParam(r, "pageID")); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "active"})
		})
		r.Post("/baseline", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Text     string `json:"text"`
				AsOfDate string `json:"as_of_date"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			var asOf time.Time
			if req.AsOfDate != "" {
				t, err := time.Parse("2006-01-02", req.AsOfDate)
				if err != nil {
					writeError(w, 400, err)
					return
				}
				asOf = t
			}
			snap, err := svc.SetManualBaseline(r.Context(), chi.URLParam(r, "pageID"), req.Text, asOf)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, snap)
		})
		r.Post("/seed-archive", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				MonthsBack int `json:"months_back"`
			}
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
			}
			snap, err := svc.SeedFromArchive(r.Context(), chi.URLParam(r, "pageID"), req.MonthsBack)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, snap)
		})
	})

	// Change events / review.
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			events, err := svc.ListChangeEvents(r.Context(),
				r.URL.Query().Get("verdict"), queryInt(r, "limit", 100))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, events)
		})
		r.Get("/{eventID}", func(w http.ResponseWriter, r *http.Request) {
			ev, err := svc.GetChangeEvent(r.Context(), chi.URLParam(r, "eventID"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, ev)
		})
		r.Post("/{eventID}/verdict", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Verdict string `json:"verdict"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.SetVerdict(r.Context(), chi.URLParam(r, "eventID"), req.Verdict); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "ok"})
		})
		r.Get("/{eventID}/snapshot", snapshotDownload(svc))
	})

	// Audit trail.
	r.Get("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		entries, err := trail.Recent(r.Context(),
			r.URL.Query().Get("action"), queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, entries)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // vendor sweeps render every page
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
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

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps monitor sentinel errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, monitor.ErrDuplicatePage):
		writeError(w, 409, err)
	case errors.Is(err, monitor.ErrAlreadySeeded):
		writeError(w, 409, err)
	case errors.Is(err, monitor.ErrInvalidInput),
		errors.Is(err, monitor.ErrInvalidVerdict),
		errors.Is(err, monitor.ErrEmptyBaseline),
		errors.Is(err, monitor.ErrNoCaptures),
		errors.Is(err, webguard.ErrSSRF),
		errors.Is(err, webguard.ErrUnsafeScheme),
		errors.Is(err, webguard.ErrNoHost):
		writeError(w, 400, err)
	case errors.Is(err, monitor.ErrPagePaused):
		writeError(w, 422, err)
	default:
		writeError(w, 500, err)
	}
}

// snapshotTexter is the slice of the monitor service the download
// handler needs.
type snapshotTexter interface {
	SnapshotText(ctx context.Context, eventID, side string) (string, error)
}

// snapshotDownload serves a stored snapshot body verbatim, as a plain-text
// attachment rather than a JSON envelope, so reviewers can save and diff
// the files directly.
func snapshotDownload(svc snapshotTexter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		side := r.URL.Query().Get("side")
		text, err := svc.SnapshotText(r.Context(), eventID, side)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", eventID+"-"+side+".txt"))
		w.WriteHeader(200)
		io.WriteString(w, text)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
