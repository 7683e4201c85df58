package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	WorkDir   string          `mapstructure:"work_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Voices    VoicesConfig    `mapstructure:"voices"`
	Lesson    LessonConfig    `mapstructure:"lesson"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Google    GoogleConfig    `mapstructure:"google"`
	Polly     PollyConfig     `mapstructure:"polly"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Pocket    PocketConfig    `mapstructure:"pocket"`
	Mastering MasteringConfig `mapstructure:"mastering"`
	Output    OutputConfig    `mapstructure:"output"`
	Media     MediaConfig     `mapstructure:"media"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type VoicesConfig struct {
	Manifest string `mapstructure:"manifest"`
}

type LessonConfig struct {
	MaxMinutes    float64 `mapstructure:"max_minutes"`
	NarratorVoice string  `mapstructure:"narrator_voice"`
	TargetVoice   string  `mapstructure:"target_voice"`
}

type SynthesisConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	CallTimeout int     `mapstructure:"call_timeout"`
	MaxTries    int     `mapstructure:"max_tries"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	Burst       int     `mapstructure:"burst"`
	Limiter     string  `mapstructure:"limiter"`
	RedisAddr   string  `mapstructure:"redis_addr"`
}

type GoogleConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	MaxChars        int    `mapstructure:"max_chars"`
}

type PollyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	Engine   string `mapstructure:"engine"`
	MaxChars int    `mapstructure:"max_chars"`
}

type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	MaxChars int    `mapstructure:"max_chars"`
	Timeout  int    `mapstructure:"timeout"`
}

type PocketConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ExecutablePath string `mapstructure:"executable_path"`
	ConfigPath     string `mapstructure:"config_path"`
	Quiet          bool   `mapstructure:"quiet"`
	MaxChars       int    `mapstructure:"max_chars"`
}

type MasteringConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	SegmentLoudnorm bool    `mapstructure:"segment_loudnorm"`
	HighpassHz      float64 `mapstructure:"highpass_hz"`
	CompThresholdDB float64 `mapstructure:"comp_threshold_db"`
	CompRatio       float64 `mapstructure:"comp_ratio"`
	CompAttackMs    float64 `mapstructure:"comp_attack_ms"`
	CompReleaseMs   float64 `mapstructure:"comp_release_ms"`
	CompMakeupDB    float64 `mapstructure:"comp_makeup_db"`
	PresenceHz      float64 `mapstructure:"presence_hz"`
	PresenceWidthQ  float64 `mapstructure:"presence_width_q"`
	PresenceGainDB  float64 `mapstructure:"presence_gain_db"`
	LoudnessI       float64 `mapstructure:"loudness_i"`
	LoudnessLRA     float64 `mapstructure:"loudness_lra"`
	LoudnessTP      float64 `mapstructure:"loudness_tp"`
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	Format     string `mapstructure:"format"`
	Codec      string `mapstructure:"codec"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	Bitrate    string `mapstructure:"bitrate"`
}

type MediaConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	Timeout     int    `mapstructure:"timeout"`
}

type QueueConfig struct {
	URL         string `mapstructure:"url"`
	Stream      string `mapstructure:"stream"`
	Subject     string `mapstructure:"subject"`
	Durable     string `mapstructure:"durable"`
	AckWait     int    `mapstructure:"ack_wait"`
	MaxDeliver  int    `mapstructure:"max_deliver"`
	Concurrency int    `mapstructure:"concurrency"`
}

type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	Dir             string `mapstructure:"dir"`
	BaseURL         string `mapstructure:"base_url"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		WorkDir:  "",
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 30,
		},
		Voices: VoicesConfig{Manifest: "voices.yaml"},
		Lesson: LessonConfig{MaxMinutes: 30},
		Synthesis: SynthesisConfig{
			Concurrency: 4,
			CallTimeout: 60,
			MaxTries:    4,
			RateLimit:   5,
			Burst:       2,
			Limiter:     LimiterLocal,
		},
		Google: GoogleConfig{Enabled: true, MaxChars: 5000},
		Polly:  PollyConfig{Enabled: true, Region: "us-east-1", Engine: "neural", MaxChars: 3000},
		OpenAI: OpenAIConfig{BaseURL: "https://api.openai.com", Model: "gpt-4o-mini-tts", MaxChars: 4096, Timeout: 60},
		Pocket: PocketConfig{Quiet: true, MaxChars: 1000},
		Mastering: MasteringConfig{
			Enabled:         true,
			HighpassHz:      80,
			CompThresholdDB: -18,
			CompRatio:       3,
			CompAttackMs:    5,
			CompReleaseMs:   50,
			CompMakeupDB:    2,
			PresenceHz:      3000,
			PresenceWidthQ:  1,
			PresenceGainDB:  2,
			LoudnessI:       -16,
			LoudnessLRA:     11,
			LoudnessTP:      -1.5,
		},
		Output: OutputConfig{
			Dir:        "out",
			Format:     "mp3",
			Codec:      "libmp3lame",
			SampleRate: 44100,
			Channels:   2,
			Bitrate:    "128k",
		},
		Media: MediaConfig{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Timeout: 600},
		Queue: QueueConfig{
			URL:         "nats://127.0.0.1:4222",
			Stream:      "LESSONAUDIO",
			Subject:     "lessonaudio.jobs",
			Durable:     "lessonaudio-worker",
			AckWait:     120,
			MaxDeliver:  3,
			Concurrency: 1,
		},
		Storage:   StorageConfig{Backend: StorageLocal, Dir: "published"},
		Store:     StoreConfig{Path: ""},
		Telemetry: TelemetryConfig{Enabled: true},
	}
}

// flagKeys maps each flag to the config key it overrides.
var flagKeys = map[string]string{
	"log-level":               "log_level",
	"work-dir":                "work_dir",
	"server-listen-addr":      "server.listen_addr",
	"voices":                  "voices.manifest",
	"max-minutes":             "lesson.max_minutes",
	"narrator-voice":          "lesson.narrator_voice",
	"target-voice":            "lesson.target_voice",
	"concurrency":             "synthesis.concurrency",
	"synthesis-call-timeout":  "synthesis.call_timeout",
	"synthesis-max-tries":     "synthesis.max_tries",
	"synthesis-limiter":       "synthesis.limiter",
	"redis-addr":              "synthesis.redis_addr",
	"google-credentials-file": "google.credentials_file",
	"polly-region":            "polly.region",
	"pocket-executable-path":  "pocket.executable_path",
	"mastering":               "mastering.enabled",
	"segment-loudnorm":        "mastering.segment_loudnorm",
	"output-dir":              "output.dir",
	"output-format":           "output.format",
	"ffmpeg-path":             "media.ffmpeg_path",
	"ffprobe-path":            "media.ffprobe_path",
	"queue-url":               "queue.url",
	"storage-backend":         "storage.backend",
	"store-path":              "store.path",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	fs.String("work-dir", defaults.WorkDir, "Scratch directory for job workspaces (default: system temp)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "Ops HTTP listen address")
	fs.String("voices", defaults.Voices.Manifest, "Voice catalog manifest (YAML or JSON)")
	fs.Float64("max-minutes", defaults.Lesson.MaxMinutes, "Lesson duration budget in minutes (0 = unbounded)")
	fs.String("narrator-voice", defaults.Lesson.NarratorVoice, "Default narrator voice id")
	fs.String("target-voice", defaults.Lesson.TargetVoice, "Default target-language voice id")
	fs.Int("concurrency", defaults.Synthesis.Concurrency, "Max concurrent synthesis calls per job")
	fs.Int("synthesis-call-timeout", defaults.Synthesis.CallTimeout, "Per-call synthesis timeout in seconds")
	fs.Int("synthesis-max-tries", defaults.Synthesis.MaxTries, "Attempts per synthesis call, including the first")
	fs.String("synthesis-limiter", defaults.Synthesis.Limiter, "Backend rate limiter: local or redis")
	fs.String("redis-addr", defaults.Synthesis.RedisAddr, "Redis address for the shared rate limiter")
	fs.String("google-credentials-file", defaults.Google.CredentialsFile, "Google Cloud credentials JSON")
	fs.String("polly-region", defaults.Polly.Region, "AWS region for Polly")
	fs.String("pocket-executable-path", defaults.Pocket.ExecutablePath, "Path to pocket-tts executable")
	fs.Bool("mastering", defaults.Mastering.Enabled, "Apply the mastering chain to the final mix")
	fs.Bool("segment-loudnorm", defaults.Mastering.SegmentLoudnorm, "Loudness-normalize each spoken segment")
	fs.String("output-dir", defaults.Output.Dir, "Directory for rendered lesson files")
	fs.String("output-format", defaults.Output.Format, "Output container extension")
	fs.String("ffmpeg-path", defaults.Media.FFmpegPath, "ffmpeg executable")
	fs.String("ffprobe-path", defaults.Media.FFprobePath, "ffprobe executable")
	fs.String("queue-url", defaults.Queue.URL, "NATS server URL")
	fs.String("storage-backend", defaults.Storage.Backend, "Upload sink: local or gcs")
	fs.String("store-path", defaults.Store.Path, "SQLite file for timing tables (empty disables)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("LESSONAUDIO")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("openai.api_key", "LESSONAUDIO_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind openai env vars: %w", err)
	}
	if err := v.BindEnv("google.credentials_file", "LESSONAUDIO_GOOGLE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"); err != nil {
		return Config{}, fmt.Errorf("bind google env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("lessonaudio")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindFlags binds the registered flags that are present on fs. Unchanged
// flags only supply defaults, so config files and env still apply.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Storage.Backend, err = NormalizeStorageBackend(c.Storage.Backend); err != nil {
		return err
	}
	if c.Synthesis.Limiter, err = NormalizeLimiter(c.Synthesis.Limiter); err != nil {
		return err
	}
	if c.Synthesis.Concurrency < 1 {
		return fmt.Errorf("synthesis.concurrency must be at least 1, got %d", c.Synthesis.Concurrency)
	}
	if c.Lesson.MaxMinutes < 0 {
		return fmt.Errorf("lesson.max_minutes must not be negative, got %v", c.Lesson.MaxMinutes)
	}
	if c.Mastering.CompRatio < 1 {
		return fmt.Errorf("mastering.comp_ratio must be at least 1, got %v", c.Mastering.CompRatio)
	}
	if c.Mastering.PresenceHz <= 0 || c.Mastering.HighpassHz < 0 {
		return fmt.Errorf("mastering frequencies must be positive (highpass %v Hz, presence %v Hz)",
			c.Mastering.HighpassHz, c.Mastering.PresenceHz)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("work_dir", c.WorkDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("voices.manifest", c.Voices.Manifest)
	v.SetDefault("lesson.max_minutes", c.Lesson.MaxMinutes)
	v.SetDefault("lesson.narrator_voice", c.Lesson.NarratorVoice)
	v.SetDefault("lesson.target_voice", c.Lesson.TargetVoice)
	v.SetDefault("synthesis.concurrency", c.Synthesis.Concurrency)
	v.SetDefault("synthesis.call_timeout", c.Synthesis.CallTimeout)
	v.SetDefault("synthesis.max_tries", c.Synthesis.MaxTries)
	v.SetDefault("synthesis.rate_limit", c.Synthesis.RateLimit)
	v.SetDefault("synthesis.burst", c.Synthesis.Burst)
	v.SetDefault("synthesis.limiter", c.Synthesis.Limiter)
	v.SetDefault("synthesis.redis_addr", c.Synthesis.RedisAddr)
	v.SetDefault("google.enabled", c.Google.Enabled)
	v.SetDefault("google.credentials_file", c.Google.CredentialsFile)
	v.SetDefault("google.max_chars", c.Google.MaxChars)
	v.SetDefault("polly.enabled", c.Polly.Enabled)
	v.SetDefault("polly.region", c.Polly.Region)
	v.SetDefault("polly.profile", c.Polly.Profile)
	v.SetDefault("polly.engine", c.Polly.Engine)
	v.SetDefault("polly.max_chars", c.Polly.MaxChars)
	v.SetDefault("openai.api_key", c.OpenAI.APIKey)
	v.SetDefault("openai.base_url", c.OpenAI.BaseURL)
	v.SetDefault("openai.model", c.OpenAI.Model)
	v.SetDefault("openai.max_chars", c.OpenAI.MaxChars)
	v.SetDefault("openai.timeout", c.OpenAI.Timeout)
	v.SetDefault("pocket.enabled", c.Pocket.Enabled)
	v.SetDefault("pocket.executable_path", c.Pocket.ExecutablePath)
	v.SetDefault("pocket.config_path", c.Pocket.ConfigPath)
	v.SetDefault("pocket.quiet", c.Pocket.Quiet)
	v.SetDefault("pocket.max_chars", c.Pocket.MaxChars)
	v.SetDefault("mastering.enabled", c.Mastering.Enabled)
	v.SetDefault("mastering.segment_loudnorm", c.Mastering.SegmentLoudnorm)
	v.SetDefault("mastering.highpass_hz", c.Mastering.HighpassHz)
	v.SetDefault("mastering.comp_threshold_db", c.Mastering.CompThresholdDB)
	v.SetDefault("mastering.comp_ratio", c.Mastering.CompRatio)
	v.SetDefault("mastering.comp_attack_ms", c.Mastering.CompAttackMs)
	v.SetDefault("mastering.comp_release_ms", c.Mastering.CompReleaseMs)
	v.SetDefault("mastering.comp_makeup_db", c.Mastering.CompMakeupDB)
	v.SetDefault("mastering.presence_hz", c.Mastering.PresenceHz)
	v.SetDefault("mastering.presence_width_q", c.Mastering.PresenceWidthQ)
	v.SetDefault("mastering.presence_gain_db", c.Mastering.PresenceGainDB)
	v.SetDefault("mastering.loudness_i", c.Mastering.LoudnessI)
	v.SetDefault("mastering.loudness_lra", c.Mastering.LoudnessLRA)
	v.SetDefault("mastering.loudness_tp", c.Mastering.LoudnessTP)
	v.SetDefault("output.dir", c.Output.Dir)
	v.SetDefault("output.format", c.Output.Format)
	v.SetDefault("output.codec", c.Output.Codec)
	v.SetDefault("output.sample_rate", c.Output.SampleRate)
	v.SetDefault("output.channels", c.Output.Channels)
	v.SetDefault("output.bitrate", c.Output.Bitrate)
	v.SetDefault("media.ffmpeg_path", c.Media.FFmpegPath)
	v.SetDefault("media.ffprobe_path", c.Media.FFprobePath)
	v.SetDefault("media.timeout", c.Media.Timeout)
	v.SetDefault("queue.url", c.Queue.URL)
	v.SetDefault("queue.stream", c.Queue.Stream)
	v.SetDefault("queue.subject", c.Queue.Subject)
	v.SetDefault("queue.durable", c.Queue.Durable)
	v.SetDefault("queue.ack_wait", c.Queue.AckWait)
	v.SetDefault("queue.max_deliver", c.Queue.MaxDeliver)
	v.SetDefault("queue.concurrency", c.Queue.Concurrency)
	v.SetDefault("storage.backend", c.Storage.Backend)
	v.SetDefault("storage.dir", c.Storage.Dir)
	v.SetDefault("storage.base_url", c.Storage.BaseURL)
	v.SetDefault("storage.bucket", c.Storage.Bucket)
	v.SetDefault("storage.prefix", c.Storage.Prefix)
	v.SetDefault("storage.credentials_file", c.Storage.CredentialsFile)
	v.SetDefault("store.path", c.Store.Path)
	v.SetDefault("telemetry.enabled", c.Telemetry.Enabled)
}
