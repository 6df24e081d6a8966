// main package for the voice-studio service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/bridge"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/dispatch"
	"github.com/book-expert/voice-studio/internal/model"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/profile"
	"github.com/book-expert/voice-studio/internal/worker"
)

const (
	profileFileEnv  = "VOICE_STUDIO_PROFILES"
	shutdownTimeout = 10 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-studio.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// Bootstrap logger lives in the temp dir until the configured log
	// directory is known.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

func serve(cfg *config.Config, log *logger.Logger) error {
	profiles, err := loadProfiles(log)
	if err != nil {
		return err
	}

	manager := model.NewManager(model.NewProcLoader(cfg.Model.Command, log), log)
	dispatcher := dispatch.New(manager.Current, log)

	assembler, err := audio.NewAssembler(log)
	if err != nil {
		log.Warn("Transcoder unavailable, merge and speed change disabled: %v", err)

		assembler = nil
	}

	err = manager.Load(cfg.Model.RootDir)
	if err != nil {
		log.Warn("Model not loaded at startup: %v", err)
	}

	server := bridge.NewServer(bridge.ServerConfig{
		Host:          cfg.Bridge.Host,
		Port:          cfg.Bridge.Port,
		MinTextLength: cfg.Bridge.MinTextLength,
		Seed:          cfg.Model.Seed,
	}, profiles, dispatcher, assembler, manager.Current, log)

	err = server.Start()
	if err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.NATS.Enabled {
		err = runWorker(ctx, cfg, profiles, dispatcher, assembler, log)
		if err != nil {
			return err
		}
	}

	log.System("voice-studio serving on %s", server.Addr())

	<-ctx.Done()
	log.Info("Shutting down.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Stop(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to stop bridge: %w", err)
	}

	return manager.Unload()
}

// loadProfiles reads the voice profile set named by the environment, or
// starts with an empty set when none is configured.
func loadProfiles(log *logger.Logger) (*profile.Set, error) {
	path := os.Getenv(profileFileEnv)
	if path == "" {
		log.Warn("%s not set, starting with no voice profiles", profileFileEnv)

		return profile.NewSet(), nil
	}

	profiles, err := profile.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice profiles: %w", err)
	}

	log.Info("Loaded %d voice profiles from %s", profiles.Len(), path)

	return profiles, nil
}

func runWorker(
	ctx context.Context,
	cfg *config.Config,
	profiles *profile.Set,
	dispatcher *dispatch.Dispatcher,
	assembler *audio.Assembler,
	log *logger.Logger,
) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		store,
		profiles,
		dispatcher,
		assembler,
		cfg.Model.Seed,
		log,
	)

	go func() {
		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			log.Error("NATS worker stopped: %v", runErr)
		}

		natsConnection.Close()
	}()

	log.Info("NATS worker listening on subject %s", cfg.NATS.SynthesisSubject)

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
