package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/murmurlabs/voiceloop/config"
	"github.com/murmurlabs/voiceloop/dialogue"
	"github.com/murmurlabs/voiceloop/logger"
	metricsprom "github.com/murmurlabs/voiceloop/metrics/prometheus"
	"github.com/murmurlabs/voiceloop/profile"
	"github.com/murmurlabs/voiceloop/respond"
	"github.com/murmurlabs/voiceloop/session"
	"github.com/murmurlabs/voiceloop/stt"
	"github.com/murmurlabs/voiceloop/transport"
	"github.com/murmurlabs/voiceloop/tts"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "voiceloopd",
	Short:         "Voiceloop - real-time spoken dialogue server",
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `Voiceloopd accepts websocket connections from voice devices, detects
utterances in the incoming audio, transcribes them, streams a reply from
the configured chat provider and delivers synthesized speech back to the
device sentence by sentence.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

func runServer(cmd *cobra.Command, _ []string) error {
	// The .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if err := logger.Configure(&cfg.Logging); err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, cleanup, err := buildProfileStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return err
	}

	ttsOpts := []tts.ElevenLabsOption{}
	if cfg.TTS.Model != "" {
		ttsOpts = append(ttsOpts, tts.WithElevenLabsModel(cfg.TTS.Model))
	}
	synthesizer := tts.NewElevenLabs(cfg.TTS.APIKey, ttsOpts...)

	chatOpts := []respond.OpenAIOption{}
	if cfg.Chat.BaseURL != "" {
		chatOpts = append(chatOpts, respond.WithOpenAIBaseURL(cfg.Chat.BaseURL))
	}
	if cfg.Chat.Model != "" {
		chatOpts = append(chatOpts, respond.WithOpenAIModel(cfg.Chat.Model))
	}
	producer := respond.NewOpenAI(cfg.Chat.APIKey, chatOpts...)

	sttCfg := stt.DefaultTranscriptionConfig()
	sttCfg.Model = cfg.STT.Model
	sttCfg.Language = cfg.STT.Language

	ttsCfg := tts.DefaultSynthesisConfig()
	ttsCfg.Voice = cfg.TTS.Voice
	ttsCfg.Model = cfg.TTS.Model

	svc := dialogue.NewService(
		session.NewRegistry(),
		transcriber,
		producer,
		synthesizer,
		profiles,
		dialogue.WithAudioDir(cfg.Audio.Dir),
		dialogue.WithVADParams(cfg.Audio.VAD),
		dialogue.WithSTTConfig(sttCfg),
		dialogue.WithTTSConfig(ttsCfg),
	)

	server := transport.NewServer(cfg.Server.Addr, svc, transport.WithPath(cfg.Server.Path))

	var exporter *metricsprom.Exporter
	if cfg.Metrics.Enabled {
		exporter = metricsprom.NewExporter(cfg.Metrics.Addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})
	if exporter != nil {
		g.Go(func() error {
			logger.Info("metrics exporter listening", "addr", cfg.Metrics.Addr)
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if exporter != nil {
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// buildProfileStore selects Redis when an address is configured and falls
// back to the in-memory store otherwise. The returned cleanup closes the
// Redis client.
func buildProfileStore(ctx context.Context, cfg config.Config) (profile.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("using in-memory profile store")
		return profile.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("using redis profile store", "addr", cfg.Redis.Addr)
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}
	return profile.NewRedisStore(client), cleanup, nil
}

func buildTranscriber(cfg config.Config) (stt.StreamingService, error) {
	switch cfg.STT.Provider {
	case "deepgram":
		return stt.NewDeepgram(cfg.STT.APIKey), nil
	case "whisper":
		opts := []stt.WhisperOption{}
		if cfg.STT.Model != "" {
			opts = append(opts, stt.WithWhisperModel(cfg.STT.Model))
		}
		return stt.Adapt(stt.NewWhisper(cfg.STT.APIKey, opts...)), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}
