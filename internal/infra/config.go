package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration of the proctoring service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Detection DetectionConfig `mapstructure:"detection"`
	Inference InferenceConfig `mapstructure:"inference"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the record store. Driver is "postgres" (URL) or
// "sqlite" (Path).
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig is optional; an empty Addr runs the service standalone.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig points at the RS256 public key. Without a key the API is
// served unauthenticated.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// DetectionConfig holds the behavioral pipeline tunables.
type DetectionConfig struct {
	FrameRate           float64       `mapstructure:"frame_rate"`
	AcceptConfidence    float64       `mapstructure:"accept_confidence"`
	DetectorConfidence  float64       `mapstructure:"detector_confidence"`
	PhoneConfidence     float64       `mapstructure:"phone_confidence"`
	CropPadding         int           `mapstructure:"crop_padding"`
	FaceSize            int           `mapstructure:"face_size"`
	FrameDelay          time.Duration `mapstructure:"frame_delay"`
	WarmupFrames        int           `mapstructure:"warmup_frames"`
	EvidenceDir         string        `mapstructure:"evidence_dir"`
	ReportDir           string        `mapstructure:"report_dir"`
	AttendanceDir       string        `mapstructure:"attendance_dir"`
	RecentLimit         int           `mapstructure:"recent_limit"`
	DedupWindow         time.Duration `mapstructure:"dedup_window"`
	RepeatWindow        time.Duration `mapstructure:"repeat_window"`
	RepeatThreshold     int           `mapstructure:"repeat_threshold"`
	ContinuousThreshold time.Duration `mapstructure:"continuous_threshold"`
	OffenderStep        int           `mapstructure:"offender_step"`
	OffenderPoll        time.Duration `mapstructure:"offender_poll"`
	WorkerJoinTimeout   time.Duration `mapstructure:"worker_join_timeout"`
	Tracker             string        `mapstructure:"tracker"` // iou, worker
	PhoneDetection      bool          `mapstructure:"phone_detection"`
}

// InferenceConfig describes the model collaborators. WorkerCommand starts
// the detector/tracker worker; the identity classifier is reached over
// gRPC when ClassifierAddr is set and through the worker otherwise.
type InferenceConfig struct {
	WorkerCommand       []string      `mapstructure:"worker_command"`
	ClassifierAddr      string        `mapstructure:"classifier_addr"`
	ClassifierTimeout   time.Duration `mapstructure:"classifier_timeout"`
	ClassifierThreshold float64       `mapstructure:"classifier_threshold"`
	RetryAttempts       uint          `mapstructure:"retry_attempts"`
	CBMaxFailures       uint32        `mapstructure:"cb_max_failures"`
	CBTimeout           time.Duration `mapstructure:"cb_timeout"`
	RateLimit           float64       `mapstructure:"rate_limit"`
	RateBurst           int           `mapstructure:"rate_burst"`
}

// LoadConfig merges the config file, environment and defaults. An empty
// path searches config.yaml in . and ./configs. A missing file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// PROCTOR_SERVER_PORT=9000 overrides server.port
	v.SetEnvPrefix("proctor")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "PROCTOR_AUTH_PUBLIC_KEY_DATA")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for postgres")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	switch c.Detection.Tracker {
	case "iou", "worker":
	default:
		return fmt.Errorf("config: unknown detection.tracker %q", c.Detection.Tracker)
	}
	if c.Detection.FrameRate <= 0 {
		return errors.New("config: detection.frame_rate must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "proctor.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("detection.frame_rate", 30)
	v.SetDefault("detection.accept_confidence", 0.40)
	v.SetDefault("detection.detector_confidence", 0.35)
	v.SetDefault("detection.phone_confidence", 0.80)
	v.SetDefault("detection.crop_padding", 20)
	v.SetDefault("detection.face_size", 160)
	v.SetDefault("detection.frame_delay", 50*time.Millisecond)
	v.SetDefault("detection.warmup_frames", 5)
	v.SetDefault("detection.evidence_dir", "cheating_screenshots")
	v.SetDefault("detection.report_dir", "media/results")
	v.SetDefault("detection.attendance_dir", "attendance_faces")
	v.SetDefault("detection.recent_limit", 30)
	v.SetDefault("detection.dedup_window", 10*time.Second)
	v.SetDefault("detection.repeat_window", 10*time.Second)
	v.SetDefault("detection.repeat_threshold", 3)
	v.SetDefault("detection.continuous_threshold", 3*time.Second)
	v.SetDefault("detection.offender_step", 3)
	v.SetDefault("detection.offender_poll", 5*time.Second)
	v.SetDefault("detection.worker_join_timeout", 5*time.Second)
	v.SetDefault("detection.tracker", "iou")
	v.SetDefault("detection.phone_detection", true)

	v.SetDefault("inference.classifier_timeout", 10*time.Second)
	v.SetDefault("inference.classifier_threshold", 0.6)
	v.SetDefault("inference.retry_attempts", 3)
	v.SetDefault("inference.cb_max_failures", 5)
	v.SetDefault("inference.cb_timeout", 30*time.Second)
	v.SetDefault("inference.rate_limit", 100)
	v.SetDefault("inference.rate_burst", 20)
}

// loadKeyResource prefers a PEM passed directly in the environment and
// falls back to reading path.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
