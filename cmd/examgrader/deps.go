package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/examgrader/internal/grading"
	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/llm"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/storage"
	"github.com/pavelanni/examgrader/internal/store"
)

// openStore opens the configured backend and loads translations for lang.
func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	var (
		backend store.Backend
		err     error
	)
	switch kind := strings.ToLower(v.GetString("store")); kind {
	case "", "sqlite":
		backend, err = store.NewSQLite(v.GetString("db"))
	case "redis":
		backend, err = store.NewRedis(ctx, v.GetString("redis-url"))
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite or redis)", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store.New(backend, v.GetString("namespace")), nil
}

type recognizer interface {
	grading.Recognizer
	Close() error
}

type openAIRecognizer struct{ *llm.Client }

func (openAIRecognizer) Close() error { return nil }

func newRecognizer(ctx context.Context, v *viper.Viper, ping bool) (recognizer, error) {
	alphabet := strings.ToLower(v.GetString("alphabet"))
	switch kind := strings.ToLower(v.GetString("recognizer")); kind {
	case "", "openai":
		c, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), alphabet)
		if err != nil {
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		if ping {
			if err := c.Ping(ctx); err != nil {
				return nil, fmt.Errorf("LLM health check: %w", err)
			}
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		return openAIRecognizer{c}, nil
	case "gemini":
		g, err := llm.NewGemini(ctx, v.GetString("gemini-key"), v.GetString("gemini-model"), alphabet)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q (want openai or gemini)", kind)
	}
}

func gradeConfig(v *viper.Viper) model.GradeConfig {
	return model.GradeConfig{
		Alphabet:       v.GetString("alphabet"),
		Lang:           v.GetString("lang"),
		FillUnanswered: v.GetBool("fill-unanswered"),
		PreviewDir:     v.GetString("preview-dir"),
	}
}

// newGrader builds a grader for cfg. openStore must have run first so the
// unknown-identity placeholders are localized.
func newGrader(rec grading.Recognizer, cfg model.GradeConfig) (*grading.Grader, error) {
	name, id := appI18n.UnknownIdentity(cfg.Lang)
	opts := []grading.Option{
		grading.WithFillUnanswered(cfg.FillUnanswered),
		grading.WithUnknownIdentity(name, id),
	}
	if cfg.PreviewDir != "" {
		fs, err := storage.NewFSStore(cfg.PreviewDir)
		if err != nil {
			return nil, fmt.Errorf("open preview store: %w", err)
		}
		opts = append(opts, grading.WithPreviewStore(fs))
	}
	return grading.NewGrader(rec, opts...), nil
}
