// Package config loads runtime tunables the way the teacher's
// api/integration-api/config package does: viper with an "__" key
// delimiter, struct-tag validation, and layered defaults.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ExecutorConfig tunes the pipeline executor (§4.1, §5).
type ExecutorConfig struct {
	EdgeQueueCapacity int `mapstructure:"edge_queue_capacity" validate:"required,min=1"`
	RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms" validate:"required,min=1"`
	RetryBackoffFactor float64 `mapstructure:"retry_backoff_factor" validate:"required,min=1"`
	RetryMaxDelayMs   int `mapstructure:"retry_max_delay_ms" validate:"required,min=1"`
	RetryMaxAttempts  int `mapstructure:"retry_max_attempts" validate:"required,min=1"`
}

// IPCConfig tunes the shared-memory fabric (§4.3).
type IPCConfig struct {
	InitialSliceBytes int `mapstructure:"initial_slice_bytes" validate:"required,min=1"`
	MaxSliceBytes     int `mapstructure:"max_slice_bytes" validate:"required,min=1"`
	MaxPublishers     int `mapstructure:"max_publishers" validate:"required,min=1"`
	MaxSubscribers    int `mapstructure:"max_subscribers" validate:"required,min=1"`
	DefaultHistorySize int `mapstructure:"default_history_size" validate:"min=0"`
}

// VADGateConfig tunes the speculative VAD gate (§4.2).
type VADGateConfig struct {
	LookbackMs          int `mapstructure:"lookback_ms" validate:"required,min=0"`
	MinSpeechDurationMs int `mapstructure:"min_speech_duration_ms" validate:"required,min=0"`
	MinSilenceDurationMs int `mapstructure:"min_silence_duration_ms" validate:"required,min=0"`
	VADDecisionTimeoutMs int `mapstructure:"vad_decision_timeout_ms" validate:"required,min=1"`
}

// DriftConfig tunes drift-metrics thresholds and hysteresis (§4.4).
type DriftConfig struct {
	SlopeThresholdMsPerS float64 `mapstructure:"slope_threshold_ms_per_s" validate:"required,gt=0"`
	AVSkewThresholdMs    int64   `mapstructure:"av_skew_threshold_ms" validate:"required,gt=0"`
	FreezeThresholdMs    int64   `mapstructure:"freeze_threshold_ms" validate:"required,gt=0"`
	CadenceCVThreshold   float64 `mapstructure:"cadence_cv_threshold" validate:"required,gt=0"`
	SamplesToRaise       int     `mapstructure:"samples_to_raise" validate:"required,min=1"`
	SamplesToClear       int     `mapstructure:"samples_to_clear" validate:"required,min=1"`
	EMAAlpha             float64 `mapstructure:"ema_alpha" validate:"required,gt=0,lte=1"`
}

// AppConfig is the process-wide configuration document.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	GRPCPort int    `mapstructure:"grpc_port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	Executor ExecutorConfig `mapstructure:"executor" validate:"required"`
	IPC      IPCConfig      `mapstructure:"ipc" validate:"required"`
	VADGate  VADGateConfig  `mapstructure:"vad_gate" validate:"required"`
	Drift    DriftConfig    `mapstructure:"drift" validate:"required"`
}

// InitConfig reads process configuration from .env / environment
// variables, the way the teacher's InitConfig does, scoped to this
// runtime's own defaults.
func InitConfig() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	// Missing .env is fine — AutomaticEnv + defaults cover it.
	_ = v.ReadInConfig()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "mediarun-runtime-node")
	v.SetDefault("VERSION", "0.1.0")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9191)
	v.SetDefault("GRPC_PORT", 9192)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("EXECUTOR__EDGE_QUEUE_CAPACITY", 32)
	v.SetDefault("EXECUTOR__RETRY_BASE_DELAY_MS", 50)
	v.SetDefault("EXECUTOR__RETRY_BACKOFF_FACTOR", 2.0)
	v.SetDefault("EXECUTOR__RETRY_MAX_DELAY_MS", 2000)
	v.SetDefault("EXECUTOR__RETRY_MAX_ATTEMPTS", 5)

	v.SetDefault("IPC__INITIAL_SLICE_BYTES", 512*1024)
	v.SetDefault("IPC__MAX_SLICE_BYTES", 1024*1024)
	v.SetDefault("IPC__MAX_PUBLISHERS", 10)
	v.SetDefault("IPC__MAX_SUBSCRIBERS", 10)
	v.SetDefault("IPC__DEFAULT_HISTORY_SIZE", 0)

	v.SetDefault("VAD_GATE__LOOKBACK_MS", 150)
	v.SetDefault("VAD_GATE__MIN_SPEECH_DURATION_MS", 250)
	v.SetDefault("VAD_GATE__MIN_SILENCE_DURATION_MS", 100)
	v.SetDefault("VAD_GATE__VAD_DECISION_TIMEOUT_MS", 2000)

	v.SetDefault("DRIFT__SLOPE_THRESHOLD_MS_PER_S", 5.0)
	v.SetDefault("DRIFT__AV_SKEW_THRESHOLD_MS", 80)
	v.SetDefault("DRIFT__FREEZE_THRESHOLD_MS", 500)
	v.SetDefault("DRIFT__CADENCE_CV_THRESHOLD", 0.3)
	v.SetDefault("DRIFT__SAMPLES_TO_RAISE", 3)
	v.SetDefault("DRIFT__SAMPLES_TO_CLEAR", 5)
	v.SetDefault("DRIFT__EMA_ALPHA", 0.1)
}

// GetApplicationConfig unmarshals and validates the application config.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults without touching the environment —
// used by tests and by components constructed outside of cmd/runtime-node.
func Default() *AppConfig {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	setDefaults(v)
	cfg, err := GetApplicationConfig(v)
	if err != nil {
		panic(err) // defaults must always validate
	}
	return cfg
}
