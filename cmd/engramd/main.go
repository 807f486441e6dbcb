// Command engramd runs the memory engine as a standalone daemon: it loads
// configuration, opens the configured backends, starts the background
// schedulers (consolidation, forgetting, synthesis, access flushing), and
// exposes a thin health/admin HTTP surface. Grounded on cmd/agentd/main.go's
// bootstrap sequence (teacher repo).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"memnexus/internal/config"
	"memnexus/internal/engine"
	"memnexus/internal/engram"
	"memnexus/internal/observability"
	"memnexus/internal/retrieve"
)

func main() {
	// Load environment from .env (or fallback to example.env) so local
	// development can run without exporting variables manually. Do this
	// before loading the config so its environment overrides see them.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfgPath := os.Getenv("MEMNEXUS_CONFIG")
	if cfgPath == "" {
		cfgPath = "memnexus.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger("engramd.log", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitOTel(ctx, cfg.Observability)
	if err != nil {
		// don't abort startup for observability failures; log and continue
		log.Warn().Err(err).Msg("otel_init_failed_continuing_without_observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("engine_init_failed")
	}
	eng.Start(ctx)

	addr := os.Getenv("MEMNEXUS_ADDR")
	if addr == "" {
		addr = ":8088"
	}
	srv := &http.Server{Addr: addr, Handler: newMux(eng)}

	go func() {
		log.Info().Str("addr", addr).Msg("engramd_listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server_failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("engramd_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http_shutdown_error")
	}
	if err := eng.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("engine_close_error")
	}
}

func newMux(eng *engine.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Writer.StatsSnapshot())
	})
	mux.HandleFunc("/v1/remember", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Content    string         `json:"content"`
			Category   string         `json:"category"`
			Importance float64        `json:"importance"`
			ProjectID  string         `json:"project_id"`
			ThreadID   string         `json:"thread_id"`
			Tags       []string       `json:"tags"`
			Metadata   map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		outcome, err := eng.Remember(r.Context(), req.Content, engine.RememberOptions{
			Category:   engramCategory(req.Category),
			Importance: req.Importance,
			ProjectID:  req.ProjectID,
			ThreadID:   req.ThreadID,
			Tags:       req.Tags,
			Metadata:   req.Metadata,
		})
		if err != nil {
			log.Error().Err(err).Msg("remember_failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"kind":      outcome.Kind,
			"engram_id": outcome.Engram.ID,
		})
	})
	mux.HandleFunc("/v1/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Query    string `json:"query"`
			EngramID string `json:"engram_id"`
			Useful   bool   `json:"useful"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.EngramID == "" {
			http.Error(w, "missing engram_id", http.StatusBadRequest)
			return
		}
		if err := eng.SubmitFeedback(r.Context(), req.Query, req.EngramID, req.Useful); err != nil {
			log.Error().Err(err).Msg("feedback_failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("/v1/recall", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, "missing q", http.StatusBadRequest)
			return
		}
		limit := 10
		if l := r.URL.Query().Get("limit"); l != "" {
			fmt.Sscanf(l, "%d", &limit)
		}
		results, err := eng.Recall(r.Context(), query, retrieveOptions(limit))
		if err != nil {
			log.Error().Err(err).Msg("recall_failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(results)
	})
	return mux
}

func engramCategory(s string) engram.Category {
	c := engram.Category(s)
	if !engram.ValidCategory(c) {
		return engram.CategoryObservation
	}
	return c
}

func retrieveOptions(limit int) retrieve.Options {
	return retrieve.Options{Limit: limit, TrackAccess: true}
}
