package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/examgrader/internal/grading"
	"github.com/pavelanni/examgrader/internal/handler"
	appI18n "github.com/pavelanni/examgrader/internal/i18n"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("admin-password", "", "Password (or bcrypt hash) for the teacher account; empty disables auth")
	f.Int64("max-upload-mb", 64, "Maximum upload size per request in MiB")
	addStoreFlags(f)
	addRecognizerFlags(f)
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := newRecognizer(ctx, v, true)
	if err != nil {
		return err
	}
	defer rec.Close()

	gcfg := gradeConfig(v)
	grader, err := newGrader(rec, gcfg)
	if err != nil {
		return err
	}

	hash, err := handler.HashPassword(v.GetString("admin-password"))
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if hash == nil {
		slog.Warn("no admin password set, API is open to anyone who can reach it")
	}

	h := handler.New(db, grading.NewIngestor(rec, nil), grader, handler.Config{
		AdminPasswordHash: hash,
		MaxUploadBytes:    v.GetInt64("max-upload-mb") << 20,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"store", v.GetString("store"),
		"recognizer", v.GetString("recognizer"),
		"alphabet", gcfg.Alphabet,
		"lang", gcfg.Lang,
		"fill_unanswered", gcfg.FillUnanswered,
		"preview_dir", gcfg.PreviewDir,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
