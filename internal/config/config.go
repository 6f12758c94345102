package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
	StoreNone      = "none"
)

// Config stores runtime configuration for the practice client.
type Config struct {
	Inference     InferenceConfig     `yaml:"inference"`
	Physio        PhysioConfig        `yaml:"physio"`
	Audio         AudioConfig         `yaml:"audio"`
	Camera        CameraConfig        `yaml:"camera"`
	Speech        SpeechConfig        `yaml:"speech"`
	Store         StoreConfig         `yaml:"store"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
	Session       SessionConfig       `yaml:"session"`
	Users         UsersConfig         `yaml:"users"`
}

type InferenceConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

type PhysioConfig struct {
	HTTPBase string        `yaml:"httpBase"`
	WSBase   string        `yaml:"wsBase"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorderCommand"`
	InputFormat     string `yaml:"inputFormat"`
	InputDevice     string `yaml:"inputDevice"`
	SampleRate      int    `yaml:"sampleRate"`
	Channels        int    `yaml:"channels"`
}

type CameraConfig struct {
	InputFormat string `yaml:"inputFormat"`
	InputDevice string `yaml:"inputDevice"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FrameRate   int    `yaml:"frameRate"`
	Quality     int    `yaml:"quality"`
}

type SpeechConfig struct {
	Command        string `yaml:"command"`
	Voice          string `yaml:"voice"`
	WordsPerMinute int    `yaml:"wordsPerMinute"`
	RulesPath      string `yaml:"rulesPath"`
	IterationLimit int    `yaml:"iterationLimit"`
	Mute           bool   `yaml:"mute"`
}

type StoreConfig struct {
	Driver          string `yaml:"driver"`
	Path            string `yaml:"path"`
	ProjectID       string `yaml:"projectId"`
	CredentialsFile string `yaml:"credentialsFile"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ExerciseTopic string   `yaml:"exerciseTopic"`
	PhysioTopic   string   `yaml:"physioTopic"`
	Client        string   `yaml:"client"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
}

type SessionConfig struct {
	ChunkSize       int           `yaml:"chunkSize"`
	UploadTimeout   time.Duration `yaml:"uploadTimeout"`
	FrameTimeout    time.Duration `yaml:"frameTimeout"`
	ControlTimeout  time.Duration `yaml:"controlTimeout"`
	TickInterval    time.Duration `yaml:"tickInterval"`
	BackgroundLimit time.Duration `yaml:"backgroundLimit"`
}

// UsersConfig holds the two independent identities: the speech user keys the
// progress store and the physio user keys the streaming service.
type UsersConfig struct {
	SpeechUserID string `yaml:"speechUserId"`
	PhysioUserID string `yaml:"physioUserId"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Inference: InferenceConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Physio: PhysioConfig{
			HTTPBase: "http://localhost:8001",
			Timeout:  15 * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			SampleRate:      16000,
			Channels:        1,
		},
		Camera: CameraConfig{
			Width:     640,
			Height:    480,
			FrameRate: 15,
			Quality:   60,
		},
		Speech: SpeechConfig{
			Command:        "espeak",
			IterationLimit: 30,
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
		},
		Kafka: KafkaConfig{
			ExerciseTopic: "speakwell.exercise.result",
			PhysioTopic:   "speakwell.physio.session",
			Client:        "speakwell",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
		Session: SessionConfig{
			ChunkSize:       4096,
			UploadTimeout:   30 * time.Second,
			FrameTimeout:    10 * time.Second,
			ControlTimeout:  10 * time.Second,
			TickInterval:    time.Second,
			BackgroundLimit: 15 * time.Second,
		},
	}
}

// DefaultFile returns the configuration file read when no path is given.
func DefaultFile() string {
	if v := strings.TrimSpace(os.Getenv("SPEAKWELL_CONFIG")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "speakwell", "config.yaml")
}

// Load resolves configuration from defaults, the YAML file at path and the
// environment, in that order. An empty path reads DefaultFile and tolerates
// it being absent.
func Load(path string) (Config, error) {
	cfg := Defaults()

	ignoreNotFound := false
	if strings.TrimSpace(path) == "" {
		path = DefaultFile()
		ignoreNotFound = true
	}
	if path != "" {
		var file Config
		if err := loadFromFile(&file, path, ignoreNotFound); err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("cannot merge configuration file %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFrom(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func loadFromFile(cfg *Config, fn string, ignoreNotFound bool) error {
	f, err := os.Open(fn)
	if os.IsNotExist(err) && ignoreNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := loadFrom(cfg, f); err != nil {
		return fmt.Errorf("cannot load configuration file %q: %w", fn, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.New("could not determine home directory")
	}
	if cfg.Speech.RulesPath == "" {
		cfg.Speech.RulesPath = filepath.Join(home, ".config", "speakwell", "speech.rules")
	}

	cfg.Inference.BaseURL = envOrDefault("SPEAKWELL_API_BASE", cfg.Inference.BaseURL)
	cfg.Inference.Timeout = envOrDefaultDuration("SPEAKWELL_API_TIMEOUT", cfg.Inference.Timeout)

	cfg.Physio.HTTPBase = envOrDefault("SPEAKWELL_PHYSIO_BASE", cfg.Physio.HTTPBase)
	cfg.Physio.WSBase = envOrDefault("SPEAKWELL_PHYSIO_WS_BASE", cfg.Physio.WSBase)
	cfg.Physio.Timeout = envOrDefaultDuration("SPEAKWELL_PHYSIO_TIMEOUT", cfg.Physio.Timeout)

	cfg.Audio.RecorderCommand = envOrDefault("SPEAKWELL_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("SPEAKWELL_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("SPEAKWELL_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("SPEAKWELL_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("SPEAKWELL_CHANNELS", cfg.Audio.Channels)

	cfg.Camera.InputFormat = envOrDefault("SPEAKWELL_CAMERA_INPUT_FORMAT", cfg.Camera.InputFormat)
	cfg.Camera.InputDevice = envOrDefault("SPEAKWELL_CAMERA_INPUT_DEVICE", cfg.Camera.InputDevice)
	cfg.Camera.Width = envOrDefaultInt("SPEAKWELL_CAMERA_WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = envOrDefaultInt("SPEAKWELL_CAMERA_HEIGHT", cfg.Camera.Height)
	cfg.Camera.FrameRate = envOrDefaultInt("SPEAKWELL_CAMERA_FPS", cfg.Camera.FrameRate)
	cfg.Camera.Quality = envOrDefaultInt("SPEAKWELL_CAMERA_QUALITY", cfg.Camera.Quality)

	cfg.Speech.Command = envOrDefault("SPEAKWELL_TTS_COMMAND", cfg.Speech.Command)
	cfg.Speech.Voice = envOrDefault("SPEAKWELL_TTS_VOICE", cfg.Speech.Voice)
	cfg.Speech.WordsPerMinute = envOrDefaultInt("SPEAKWELL_TTS_WPM", cfg.Speech.WordsPerMinute)
	cfg.Speech.RulesPath = envOrDefault("SPEAKWELL_RULES_FILE", cfg.Speech.RulesPath)
	cfg.Speech.IterationLimit = envOrDefaultInt("SPEAKWELL_RULE_ITERATION_LIMIT", cfg.Speech.IterationLimit)
	cfg.Speech.Mute = envOrDefaultBool("SPEAKWELL_MUTE", cfg.Speech.Mute)

	cfg.Store.Driver = strings.ToLower(envOrDefault("SPEAKWELL_STORE", cfg.Store.Driver))
	cfg.Store.Path = envOrDefault("SPEAKWELL_DB_PATH", cfg.Store.Path)
	cfg.Store.ProjectID = firstNonEmpty(os.Getenv("FIREBASE_PROJECT_ID"), os.Getenv("GOOGLE_CLOUD_PROJECT"), cfg.Store.ProjectID)
	cfg.Store.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", cfg.Store.CredentialsFile)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.ExerciseTopic = envOrDefault("KAFKA_TOPIC_EXERCISE", cfg.Kafka.ExerciseTopic)
	cfg.Kafka.PhysioTopic = envOrDefault("KAFKA_TOPIC_PHYSIO", cfg.Kafka.PhysioTopic)
	cfg.Kafka.Client = envOrDefault("KAFKA_CLIENT_ID", cfg.Kafka.Client)

	cfg.Observability.MetricsAddr = envOrDefault("SPEAKWELL_METRICS_ADDR", cfg.Observability.MetricsAddr)
	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)

	cfg.Session.ChunkSize = envOrDefaultInt("SPEAKWELL_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.UploadTimeout = envOrDefaultDuration("SPEAKWELL_UPLOAD_TIMEOUT", cfg.Session.UploadTimeout)
	cfg.Session.FrameTimeout = envOrDefaultDuration("SPEAKWELL_FRAME_TIMEOUT", cfg.Session.FrameTimeout)
	cfg.Session.ControlTimeout = envOrDefaultDuration("SPEAKWELL_CONTROL_TIMEOUT", cfg.Session.ControlTimeout)
	cfg.Session.TickInterval = envOrDefaultDuration("SPEAKWELL_TICK_INTERVAL", cfg.Session.TickInterval)
	cfg.Session.BackgroundLimit = envOrDefaultDuration("SPEAKWELL_BACKGROUND_LIMIT", cfg.Session.BackgroundLimit)

	cfg.Users.SpeechUserID = envOrDefault("SPEAKWELL_USER_ID", cfg.Users.SpeechUserID)
	cfg.Users.PhysioUserID = envOrDefault("SPEAKWELL_PHYSIO_USER_ID", cfg.Users.PhysioUserID)
	return nil
}

// normalize replaces out-of-range values with defaults.
func normalize(cfg *Config) error {
	defaults := Defaults()

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		cfg.Camera.Width, cfg.Camera.Height = defaults.Camera.Width, defaults.Camera.Height
	}
	if cfg.Camera.FrameRate <= 0 {
		cfg.Camera.FrameRate = defaults.Camera.FrameRate
	}
	if cfg.Camera.Quality < 1 || cfg.Camera.Quality > 100 {
		cfg.Camera.Quality = defaults.Camera.Quality
	}
	if cfg.Speech.IterationLimit <= 0 {
		cfg.Speech.IterationLimit = defaults.Speech.IterationLimit
	}
	if cfg.Speech.WordsPerMinute < 0 {
		cfg.Speech.WordsPerMinute = 0
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defaults.Session.ChunkSize
	}
	if cfg.Session.UploadTimeout <= 0 {
		cfg.Session.UploadTimeout = defaults.Session.UploadTimeout
	}
	if cfg.Session.FrameTimeout <= 0 {
		cfg.Session.FrameTimeout = defaults.Session.FrameTimeout
	}
	if cfg.Session.ControlTimeout <= 0 {
		cfg.Session.ControlTimeout = defaults.Session.ControlTimeout
	}
	if cfg.Session.TickInterval <= 0 {
		cfg.Session.TickInterval = defaults.Session.TickInterval
	}
	if cfg.Session.BackgroundLimit <= 0 {
		cfg.Session.BackgroundLimit = defaults.Session.BackgroundLimit
	}
	if cfg.Users.PhysioUserID == "" {
		cfg.Users.PhysioUserID = cfg.Users.SpeechUserID
	}

	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = StoreSQLite
	case StoreSQLite, StoreNone:
	case StoreFirestore:
		if cfg.Store.ProjectID == "" {
			return errors.New("firestore store requires a project id (FIREBASE_PROJECT_ID)")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultDuration accepts Go durations ("30s") or plain milliseconds.
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms < 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envOrDefaultList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
