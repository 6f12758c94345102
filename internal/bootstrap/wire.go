package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"speakwell/internal/audio"
	"speakwell/internal/config"
	"speakwell/internal/events"
	"speakwell/internal/observability"
	"speakwell/internal/observability/logging"
	"speakwell/internal/observability/metrics"
	"speakwell/internal/ports"
	"speakwell/internal/providers/inference"
	"speakwell/internal/providers/physio"
	"speakwell/internal/rules"
	"speakwell/internal/speech"
	"speakwell/internal/store/firestore"
	"speakwell/internal/store/sqlite"
	"speakwell/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recording *usecase.RecordingController
	Streaming *usecase.StreamingController
	Dashboard *usecase.Dashboard
	Assistant *usecase.Assistant
	Config    config.Config

	metricsServer *observability.Server
	closers       []func() error
}

// Build wires all dependencies for cfg. The caller owns the returned
// Services and must Close it.
func Build(ctx context.Context, cfg config.Config, eventSink ports.EventSink) (_ *Services, rErr error) {
	services := &Services{Config: cfg}
	defer func() {
		if rErr != nil {
			_ = services.Close()
		}
	}()

	m := metrics.DefaultMetrics
	log := logging.WithComponent("bootstrap")

	rulesEngine, err := rules.NewSpeechEngine(cfg.Speech.RulesPath, cfg.Speech.IterationLimit)
	if err != nil {
		return nil, err
	}

	var synthesizer ports.SpeechSynthesizer = speech.Muted{}
	if !cfg.Speech.Mute {
		synthesizer = speech.NewCommandSynthesizer(speech.Config{
			Command:        cfg.Speech.Command,
			Voice:          cfg.Speech.Voice,
			WordsPerMinute: cfg.Speech.WordsPerMinute,
		}, rulesEngine)
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		services.closers = append(services.closers, closer.Close)
	}

	publisher := events.New(&events.Config{
		Brokers:       cfg.Kafka.Brokers,
		ExerciseTopic: cfg.Kafka.ExerciseTopic,
		PhysioTopic:   cfg.Kafka.PhysioTopic,
		Client:        cfg.Kafka.Client,
		Enabled:       cfg.Kafka.Enabled,
		Metrics:       m,
	})
	services.closers = append(services.closers, publisher.Close)

	inferenceClient := inference.NewClient(inference.Config{
		BaseURL:    cfg.Inference.BaseURL,
		Timeout:    cfg.Inference.Timeout,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})

	physioClient, err := physio.NewClient(physio.Config{
		HTTPBase: cfg.Physio.HTTPBase,
		WSBase:   cfg.Physio.WSBase,
		Timeout:  cfg.Physio.Timeout,
	})
	if err != nil {
		return nil, err
	}

	services.Recording = usecase.NewRecordingController(
		usecase.RecordingDeps{
			Audio:     audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			Inference: inferenceClient,
			Events:    eventSink,
			Store:     store,
			Publisher: publisher,
			Speech:    synthesizer,
		},
		usecase.RecordingConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			UserID:          cfg.Users.SpeechUserID,
			ChunkSize:       cfg.Session.ChunkSize,
			UploadTimeout:   cfg.Session.UploadTimeout,
			TickInterval:    cfg.Session.TickInterval,
			BackgroundLimit: cfg.Session.BackgroundLimit,
			Mute:            cfg.Speech.Mute,
			Metrics:         m,
		},
	)
	services.closers = append(services.closers, services.Recording.Close)

	services.Streaming = usecase.NewStreamingController(
		usecase.StreamingDeps{
			Camera:    audio.NewFFMPEGCamera(cfg.Audio.RecorderCommand),
			Service:   physioClient,
			Events:    eventSink,
			Publisher: publisher,
		},
		usecase.StreamingConfig{
			Camera: ports.CameraConfig{
				InputFormat: cfg.Camera.InputFormat,
				InputDevice: cfg.Camera.InputDevice,
				Width:       cfg.Camera.Width,
				Height:      cfg.Camera.Height,
				FrameRate:   cfg.Camera.FrameRate,
				Quality:     cfg.Camera.Quality,
			},
			UserID:         cfg.Users.PhysioUserID,
			FrameTimeout:   cfg.Session.FrameTimeout,
			ControlTimeout: cfg.Session.ControlTimeout,
			Metrics:        m,
		},
	)
	services.closers = append(services.closers, services.Streaming.Close)

	services.Dashboard = usecase.NewDashboard(store, cfg.Users.SpeechUserID)
	services.Assistant = usecase.NewAssistant(inferenceClient, cfg.Users.SpeechUserID)

	if cfg.Observability.MetricsAddr != "" {
		services.metricsServer = observability.NewServer(cfg.Observability.MetricsAddr, prometheus.DefaultGatherer)
		services.metricsServer.Start()
		services.metricsServer.SetReady(true)
	}

	log.Debug().
		Str("store", cfg.Store.Driver).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("mute", cfg.Speech.Mute).
		Int("rules", rulesEngine.Len()).
		Msg("services wired")
	return services, nil
}

// openStore returns a nil interface when persistence is disabled.
func openStore(ctx context.Context, cfg config.StoreConfig) (ports.ProgressStore, error) {
	switch cfg.Driver {
	case config.StoreNone:
		return nil, nil
	case config.StoreFirestore:
		store, err := firestore.Open(ctx, firestore.Config{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreSQLite, "":
		path := cfg.Path
		if path == "" {
			path = sqlite.DefaultDBPath()
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close stops controllers first, then the adapters they write to.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.metricsServer = nil
	}
	return errors.Join(errs...)
}
