package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	_ = godotenv.Load() // .env is optional
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examgrader",
		Short:        "Grade multiple-choice answer sheets from photos",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, sessionCmd(), keyCmd(), gradeCmd(), scanCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgrader --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("store", "sqlite", "Session store backend (sqlite, redis)")
	f.String("db", "examgrader.db", "SQLite database path")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL for the redis store")
	f.String("namespace", "school_exams_data", "Snapshot namespace shared by all sessions")
	f.StringP("lang", "l", "th", "Language for messages and unknown-name placeholders (en, th)")
}

func addRecognizerFlags(f *pflag.FlagSet) {
	f.String("recognizer", "openai", "Recognition backend (openai, gemini)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "gpt-4o-mini", "Vision model name for the OpenAI-compatible endpoint")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", "gemini-1.5-flash", "Gemini model name")
	f.String("alphabet", "thai", "Answer choice alphabet (thai, latin)")
	f.Bool("fill-unanswered", false, "Record key questions the recognizer skipped as unanswered")
	f.String("preview-dir", "", "Directory for graded sheet previews (empty disables)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgrader")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgrader")
	v.AddConfigPath("/etc/examgrader")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}
