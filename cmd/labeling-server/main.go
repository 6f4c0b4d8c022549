// Package main provides the labeling server entry point: it wires the
// project store, the recognition collaborators, and the orchestrator behind
// the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhapran/OCR-Form-Tools/pkg/api"
	"github.com/jhapran/OCR-Form-Tools/pkg/fields"
	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
	"github.com/jhapran/OCR-Form-Tools/pkg/recognize"
	"github.com/jhapran/OCR-Form-Tools/pkg/reconcile"
	"github.com/jhapran/OCR-Form-Tools/pkg/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.Parse()

	// Initialize glog for fatal paths.
	_ = flag.Set("logtostderr", "true")

	cfg, err := loadConfig(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting labeling server",
		"listen", cfg.GetString("listen"),
		"dbType", cfg.GetString("db-type"),
		"fields", cfg.GetString("fields"),
		"projectID", cfg.GetString("project-id"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(cfg.GetString("db-type"), cfg.GetString("db-dsn"))
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	st := store.New(gormDB)
	if err := st.AutoMigrate(); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	project := labeling.Project{
		ID:   cfg.GetString("project-id"),
		Name: cfg.GetString("project-name"),
	}
	if err := st.SaveProject(ctx, &project); err != nil {
		glog.Fatalf("Failed to save project: %v", err)
	}

	fieldsPath := cfg.GetString("fields")
	tags, err := fields.Load(fieldsPath)
	if err != nil {
		glog.Fatalf("Failed to load fields file: %v", err)
	}
	if err := st.SyncTags(ctx, project.ID, tags); err != nil {
		glog.Fatalf("Failed to sync tags: %v", err)
	}
	logger.Info("fields loaded", "path", fieldsPath, "tags", len(tags))

	client := recognize.NewClient(cfg.GetString("service-url"), cfg.GetString("service-key"))

	session := reconcile.NewSession()
	reconciler := reconcile.NewReconciler(session, st, logger)
	orch := orchestrate.New(project, orchestrate.Collaborators{
		Store:      st,
		Recognizer: client,
		Predictor:  client,
		Mapper:     recognize.Mapper{},
		Artifacts:  st,
		Attributes: recognize.FileAttributeReader{},
	}, reconciler, workflowConfig(cfg), logger)
	orch.SetTags(tags)

	if err := orch.LoadProject(ctx); err != nil {
		glog.Fatalf("Failed to load project assets: %v", err)
	}

	// Hot reload of the fields file.
	go func() {
		err := fields.Watch(ctx, fieldsPath, logger, func(tags []labeling.Tag) {
			if err := st.SyncTags(ctx, project.ID, tags); err != nil {
				logger.Error("sync reloaded tags failed", "error", err)
				return
			}
			orch.SetTags(tags)
		})
		if err != nil {
			logger.Error("fields watcher stopped", "error", err)
		}
	}()

	router := chi.NewRouter()
	router.Mount("/api/v1/labeling", api.Router(orch, st, project.ID, logger))

	httpServer := &http.Server{
		Addr:    cfg.GetString("listen"),
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("labeling server ready", "listen", cfg.GetString("listen"))

	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("labeling server stopped")
}

// loadConfig layers flags < defaults < optional config file < LABELING_* env.
func loadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("listen", ":8080")
	v.SetDefault("db-type", "sqlite")
	v.SetDefault("db-dsn", "labeling.db")
	v.SetDefault("fields", "fields.yaml")
	v.SetDefault("project-id", "default")
	v.SetDefault("project-name", "Labeling Project")
	v.SetDefault("service-url", "http://localhost:5000")
	v.SetDefault("service-key", "")
	v.SetDefault("concurrency", 3)
	v.SetDefault("autolabel-batch-size", 5)

	v.SetEnvPrefix("LABELING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	return v, nil
}

func workflowConfig(v *viper.Viper) *orchestrate.Config {
	cfg := orchestrate.DefaultConfig()
	if n := v.GetInt("concurrency"); n > 0 {
		cfg.Concurrency = n
	}
	if n := v.GetInt("autolabel-batch-size"); n > 0 {
		cfg.AutoLabelBatchSize = n
	}
	return cfg
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required (use db-dsn or LABELING_DB_DSN)")
	}

	var dialector gorm.Dialector
	switch dbType {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database type %q (expected sqlite, postgres, or mysql)", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", dbType, err)
	}
	return db, nil
}
