package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/audit"
	"github.com/syncdrive/encryptd/internal/config"
	"github.com/syncdrive/encryptd/internal/encryption"
	"github.com/syncdrive/encryptd/internal/metrics"
	"github.com/syncdrive/encryptd/internal/modules/aesgcm"
	"github.com/syncdrive/encryptd/internal/share"
	"github.com/syncdrive/encryptd/internal/storage"
	"github.com/syncdrive/encryptd/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	targetUser := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		return 1
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting bulk decryption")

	// long runs pick up log level changes without a restart
	reloader, err := config.NewReloader(*configPath, logger, func(newCfg *config.Config) {
		if lvl, err := logrus.ParseLevel(newCfg.LogLevel); err == nil {
			logger.SetLevel(lvl)
		}
	})
	if err != nil {
		logger.WithError(err).Warn("Config reloading disabled")
	} else {
		defer reloader.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracing")
		}
	}()

	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()

	store, err := config.NewStoreFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize settings store")
		return 1
	}

	backend, err := buildStorage(cfg.Backend.Type, cfg.Backend.Local, &cfg.Backend.S3)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize storage backend")
		return 1
	}

	mounts := storage.NewMountManager()
	mounts.Register(&storage.Mount{MountPoint: "/", Backing: backend})
	for _, mc := range cfg.Mounts {
		st, err := buildStorage(mc.Type, mc.Local, &mc.S3)
		if err != nil {
			logger.WithError(err).WithField("mountPoint", mc.MountPoint).Error("Failed to initialize mount")
			return 1
		}
		mounts.Register(&storage.Mount{
			MountPoint:       mc.MountPoint,
			SystemWide:       true,
			ApplicableUsers:  mc.ApplicableUsers,
			ApplicableGroups: mc.ApplicableGroups,
			Backing:          st,
		})
	}
	view := storage.NewView(mounts)

	users := newStorageUsers(view)
	groups := share.NewMemoryGroups()
	shares := share.NewMemoryManager()

	util := encryption.NewUtil(view, users, groups, store, cfg.InstanceID)
	manager := encryption.NewManager(store, util, logger)
	fileHelper := encryption.NewFile(util, shares, cfg.Cache.MaxItems)

	passphrase, err := loadPassphrase(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to load passphrase")
		return 1
	}
	module, err := aesgcm.New(view, util, cfg.Module.Cipher, passphrase, aesgcm.PromptPassphrase)
	if err != nil {
		logger.WithError(err).Error("Failed to create encryption module")
		return 1
	}
	if err := manager.RegisterModule(module.ID(), module.DisplayName(), func() (encryption.Module, error) {
		return module, nil
	}); err != nil {
		logger.WithError(err).Error("Failed to register encryption module")
		return 1
	}

	// wrap every mount unconditionally so reads decrypt no matter where
	// the files live
	wrapper := encryption.NewWrapper(manager, util, fileHelper, logger, m, targetUser)
	mounts.RegisterStorageWrapper(func(mountPoint string, st storage.Storage, mount *storage.Mount) storage.Storage {
		return wrapper.WrapStorage(mountPoint, st, mount, true)
	})

	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
	}
	if cfg.Admin.Enabled {
		go serveAdmin(cfg.Admin.ListenAddr, m, auditLogger, logger)
	}

	if !*yes && !confirm(targetUser) {
		fmt.Println("aborted")
		return 1
	}

	// switch encryption off so the plaintext copies stay plaintext
	wasEnabled := manager.IsEnabled()
	if err := manager.SetEnabled(false); err != nil {
		logger.WithError(err).Error("Failed to disable encryption")
		return 1
	}

	decryptAll := encryption.NewDecryptAll(manager, util, view, logger, m, auditLogger, os.Stdout)
	ok := decryptAll.Run(ctx, targetUser)
	if !ok && wasEnabled {
		// the run never started, put the switch back
		if err := manager.SetEnabled(true); err != nil {
			logger.WithError(err).Error("Failed to re-enable encryption")
		}
	}
	if !ok {
		return 1
	}
	if len(decryptAll.Failed()) > 0 {
		return 2
	}
	return 0
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func buildStorage(kind string, local config.LocalConfig, s3cfg *storage.S3Config) (storage.Storage, error) {
	switch kind {
	case "s3":
		return storage.NewS3(s3cfg)
	default:
		return storage.NewLocal(local.Root)
	}
}

func loadPassphrase(cfg *config.Config) (string, error) {
	if cfg.Module.Passphrase != "" {
		return cfg.Module.Passphrase, nil
	}
	if cfg.Module.KeyFile != "" {
		data, err := os.ReadFile(cfg.Module.KeyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read key file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

func confirm(targetUser string) bool {
	scope := "all users"
	if targetUser != "" {
		scope = fmt.Sprintf("user %q", targetUser)
	}
	fmt.Printf("This will disable server side encryption and decrypt all files of %s.\n", scope)
	fmt.Print("Continue? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func serveAdmin(addr string, m *metrics.Metrics, auditLogger *audit.Logger, logger *logrus.Logger) {
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	router.HandleFunc("/audit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if auditLogger == nil {
			w.Write([]byte("[]"))
			return
		}
		json.NewEncoder(w).Encode(auditLogger.Recent())
	}).Methods("GET")

	logger.WithField("addr", addr).Info("Admin listener started")
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.WithError(err).Error("Admin listener failed")
	}
}
