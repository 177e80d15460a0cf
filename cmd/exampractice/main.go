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
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/exampractice/internal/exam"
	"github.com/pavelanni/exampractice/internal/handler"
	appI18n "github.com/pavelanni/exampractice/internal/i18n"
	"github.com/pavelanni/exampractice/internal/importer"
	"github.com/pavelanni/exampractice/internal/llm"
	"github.com/pavelanni/exampractice/internal/llm/prompts"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

func main() {
	// A .env file in the working directory seeds the environment; real
	// variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exampractice",
		Short: "Multiple-choice exam practice with an AI tutor",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), takeCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `exampractice --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "exampractice.db", "SQLite database path")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for the OpenAI default)")
	f.String("llm-key", "", "API key for the LLM (or set OPENAI_API_KEY)")
	f.String("llm-model", llm.DefaultModel, "LLM model name (or set OPENAI_MODEL)")
	f.StringP("lang", "l", "en", "UI and tutor language (en, vi)")
	f.Int("ai-max-turns", llm.DefaultMaxTurns, "Trailing conversation turns forwarded to the tutor")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /vi)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EXAMPRACTICE_ADMIN_PASSWORD)")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file into the question bank",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "exampractice.db", "SQLite database path")
	f.StringP("file", "f", "", "CSV file to import (required)")
	f.StringP("subject", "s", "", "Subject name or ID; created if it does not exist (required)")
	f.StringP("topic", "t", "", "Topic name or ID within the subject; created if it does not exist")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submitted exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "exampractice.db", "SQLite database path")
	f.StringP("subject", "s", "", "Only export exams of this subject (name or ID)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("EXAMPRACTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Provider credentials also come from the usual OpenAI variables.
	_ = v.BindEnv("llm-key", "EXAMPRACTICE_LLM_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm-model", "EXAMPRACTICE_LLM_MODEL", "OPENAI_MODEL")

	v.SetConfigName("exampractice")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exampractice")
	v.AddConfigPath("/etc/exampractice")
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

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	if err := prompts.Load(); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	variant := prompts.Variant(appI18n.Match(lang))
	tutor := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		variant,
		v.GetInt("ai-max-turns"),
	)
	if !tutor.Configured() {
		slog.Warn("no LLM API key set; /api/ai will fail until one is configured")
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AIMaxTurns:    v.GetInt("ai-max-turns"),
	}
	h := handler.New(db, exam.NewService(db), tutor, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	questions, err := db.QuestionCount(ctx)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"ai_max_turns", cfg.AIMaxTurns,
		"base_path", basePath,
		"questions", questions,
	)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return srv.ListenAndServe()
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	subjectID, err := resolveSubject(ctx, db, v.GetString("subject"), true)
	if err != nil {
		return err
	}
	topicID := ""
	if name := strings.TrimSpace(v.GetString("topic")); name != "" {
		if topicID, err = resolveTopic(ctx, db, subjectID, name); err != nil {
			return err
		}
	}

	res, err := importer.Import(ctx, db, importer.Request{
		Data:      data,
		Filename:  filepath.Base(path),
		SubjectID: subjectID,
		TopicID:   topicID,
		Role:      model.UserRoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d questions from %s.\n", res.Inserted, path)
	if res.Duplicate {
		fmt.Fprintln(cmd.OutOrStdout(), "Note: this file had already been imported into the subject.")
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export := model.ResultsExport{GeneratedAt: time.Now().UTC()}
	subjectID := ""
	if name := v.GetString("subject"); name != "" {
		if subjectID, err = resolveSubject(ctx, db, name, false); err != nil {
			return err
		}
		sub, err := db.GetSubject(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("get subject: %w", err)
		}
		export.Subject = sub.Name
	}

	export.Results, err = db.ExportResults(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	if export.Results == nil {
		export.Results = []model.StudentResult{}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported results", "count", len(export.Results), "output", outPath)
	return nil
}

// resolveSubject accepts a subject ID or name. Unknown names are created
// when create is set.
func resolveSubject(ctx context.Context, db *store.Store, ref string, create bool) (string, error) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		if _, err := db.GetSubject(ctx, ref); err != nil {
			return "", fmt.Errorf("subject %s: %w", ref, err)
		}
		return ref, nil
	}
	subjects, err := db.ListSubjects(ctx)
	if err != nil {
		return "", fmt.Errorf("list subjects: %w", err)
	}
	for _, s := range subjects {
		if strings.EqualFold(s.Name, ref) {
			return s.ID, nil
		}
	}
	if !create {
		return "", fmt.Errorf("subject %q: %w", ref, store.ErrNotFound)
	}
	id, err := db.CreateSubject(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("create subject: %w", err)
	}
	slog.Info("created subject", "id", id, "name", ref)
	return id, nil
}

// resolveTopic accepts a topic ID or name within the subject, creating
// unknown names.
func resolveTopic(ctx context.Context, db *store.Store, subjectID, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		t, err := db.GetTopic(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("topic %s: %w", ref, err)
		}
		if t.SubjectID != subjectID {
			return "", fmt.Errorf("topic %s belongs to another subject", ref)
		}
		return ref, nil
	}
	topics, err := db.ListTopics(ctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("list topics: %w", err)
	}
	for _, t := range topics {
		if strings.EqualFold(t.Name, ref) {
			return t.ID, nil
		}
	}
	id, err := db.CreateTopic(ctx, subjectID, ref)
	if err != nil {
		return "", fmt.Errorf("create topic: %w", err)
	}
	slog.Info("created topic", "id", id, "name", ref)
	return id, nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or EXAMPRACTICE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
