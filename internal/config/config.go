package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Audio       AudioConfig      `yaml:"audio"`
	STT         STTConfig        `yaml:"stt"`
	Transcript  TranscriptConfig `yaml:"transcript"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
}

type AudioConfig struct {
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	StallTimeoutMS  int    `yaml:"stall_timeout_ms"`
	ArchiveDir      string `yaml:"archive_dir"`
}

// ChunkSamples is the number of interleaved samples in one chunk.
func (a AudioConfig) ChunkSamples() int {
	return a.SampleRate * a.ChunkDurationMS / 1000 * a.Channels
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // process, whisper, mock
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	ModelFlag string `yaml:"model_flag"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
}

type TranscriptConfig struct {
	Separator         string `yaml:"separator"`
	PersistPath       string `yaml:"persist_path"`
	PersistIntervalMS int    `yaml:"persist_interval_ms"`
	OutputDir         string `yaml:"output_dir"`
	Username          string `yaml:"username"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	downloads := downloadsDir()
	return Config{
		RuntimeName: "whisperlite",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			ChunkDurationMS: 1500,
			FramesPerBuffer: 1024,
			StallTimeoutMS:  3000,
		},
		STT: STTConfig{
			Mode:      "process",
			Command:   "whisper-stream",
			ModelPath: "models/ggml-tiny.en.bin",
			ModelFlag: "--model",
			Language:  "en",
			Threads:   4,
		},
		Transcript: TranscriptConfig{
			Separator:         " ",
			PersistPath:       filepath.Join(downloads, "whisperlite_transcript.txt"),
			PersistIntervalMS: 5000,
			OutputDir:         downloads,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/whisperlite.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://127.0.0.1:4222"},
			ConnectTimeout: 2000,
		},
	}
}

func downloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "WHISPERLITE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "WHISPERLITE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "WHISPERLITE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "WHISPERLITE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "WHISPERLITE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "WHISPERLITE_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "WHISPERLITE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "WHISPERLITE_TELEMETRY_OTLP_INSECURE")
	overrideInt(&cfg.Audio.SampleRate, "WHISPERLITE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "WHISPERLITE_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.ChunkDurationMS, "WHISPERLITE_AUDIO_CHUNK_DURATION_MS")
	overrideInt(&cfg.Audio.FramesPerBuffer, "WHISPERLITE_AUDIO_FRAMES_PER_BUFFER")
	overrideInt(&cfg.Audio.StallTimeoutMS, "WHISPERLITE_AUDIO_STALL_TIMEOUT_MS")
	overrideString(&cfg.Audio.ArchiveDir, "WHISPERLITE_AUDIO_ARCHIVE_DIR")
	overrideString(&cfg.STT.Mode, "WHISPERLITE_STT_MODE")
	overrideString(&cfg.STT.Command, "WHISPERLITE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "WHISPERLITE_STT_MODEL_PATH")
	overrideString(&cfg.STT.ModelFlag, "WHISPERLITE_STT_MODEL_FLAG")
	overrideString(&cfg.STT.Language, "WHISPERLITE_STT_LANGUAGE")
	overrideInt(&cfg.STT.Threads, "WHISPERLITE_STT_THREADS")
	overrideString(&cfg.Transcript.PersistPath, "WHISPERLITE_TRANSCRIPT_PERSIST_PATH")
	overrideInt(&cfg.Transcript.PersistIntervalMS, "WHISPERLITE_TRANSCRIPT_PERSIST_INTERVAL_MS")
	overrideString(&cfg.Transcript.OutputDir, "WHISPERLITE_TRANSCRIPT_OUTPUT_DIR")
	overrideString(&cfg.Transcript.Username, "WHISPERLITE_TRANSCRIPT_USERNAME")
	overrideString(&cfg.EventStore.Path, "WHISPERLITE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "WHISPERLITE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "WHISPERLITE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "WHISPERLITE_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "WHISPERLITE_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "WHISPERLITE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "WHISPERLITE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "WHISPERLITE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "WHISPERLITE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "WHISPERLITE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "WHISPERLITE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "WHISPERLITE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "WHISPERLITE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "WHISPERLITE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "WHISPERLITE_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceExporter == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.ChunkDurationMS <= 0 {
		return errors.New("audio.chunk_duration_ms must be positive")
	}
	if cfg.Audio.ChunkSamples() <= 0 {
		return errors.New("audio chunk must hold at least one sample")
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		return errors.New("audio.frames_per_buffer must be >= 0")
	}
	if cfg.Audio.StallTimeoutMS < 0 {
		return errors.New("audio.stall_timeout_ms must be >= 0")
	}
	switch cfg.STT.Mode {
	case "process", "whisper", "mock":
	default:
		return errors.New("stt.mode must be one of process|whisper|mock")
	}
	if cfg.STT.Mode == "process" && strings.TrimSpace(cfg.STT.Command) == "" {
		return errors.New("stt.command must be set when mode=process")
	}
	if cfg.Transcript.PersistPath == "" {
		return errors.New("transcript.persist_path must not be empty")
	}
	if cfg.Transcript.PersistIntervalMS <= 0 {
		return errors.New("transcript.persist_interval_ms must be positive")
	}
	if cfg.Transcript.OutputDir == "" {
		return errors.New("transcript.output_dir must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
