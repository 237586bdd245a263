package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/broadcast"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/export"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/extract"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/orchestrator"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/reader"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/render"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/server"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		logger.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	rd := reader.NewReader(reader.Config{
		Pdftotext:           cfg.Reader.Pdftotext,
		Pdftoppm:            cfg.Reader.Pdftoppm,
		Tesseract:           cfg.Reader.Tesseract,
		TesseractLang:       cfg.Reader.TesseractLang,
		DPI:                 cfg.Reader.DPI,
		MaxPages:            cfg.Reader.MaxPages,
		EnableTSVConfidence: cfg.Reader.TSVConfidence,
	}, logger)

	ex := extract.NewClient(extract.ClientConfig{
		BaseURL: cfg.Extractor.BaseURL,
		Model:   cfg.Extractor.Model,
		Timeout: cfg.Extractor.Timeout,
	}, logger)

	gen := render.NewGenerator(cfg.Pipeline.OutputDir, logger)
	hub := broadcast.NewHub(logger)
	defer hub.Close()

	orch := orchestrator.New(rd, ex, st, gen, hub, logger,
		orchestrator.WithWorkers(cfg.Pipeline.Workers),
		orchestrator.WithQueueSize(cfg.Pipeline.QueueSize),
		orchestrator.WithJobTimeout(cfg.Pipeline.JobTimeout),
		orchestrator.WithRetry(cfg.Pipeline.MaxAttempts, cfg.Pipeline.RetryBase),
	)

	exp := export.NewService(st, logger)
	srv := server.New(cfg.Server, orch, st, exp, hub, ex, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	orch.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
