package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Detect      DetectConfig      `yaml:"detect"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Identity    IdentityConfig    `yaml:"identity"`
	Collections CollectionsConfig `yaml:"collections"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Duration wraps time.Duration so YAML can carry values like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type DetectConfig struct {
	ModelsDir          string   `yaml:"models_dir"`
	DetectionThreshold float64  `yaml:"detection_threshold"`
	WorkerCount        int      `yaml:"worker_count"`
	MaxAttempts        int      `yaml:"max_attempts"`
	RetryBackoff       Duration `yaml:"retry_backoff"`
}

// ScoringConfig centralizes every threshold and weight the scoring engine
// uses, so they are tunable without code changes. PlacementMinConfidence
// bounds the size of downstream recommendation lists; the shipped default
// is 0.5.
type ScoringConfig struct {
	ObjectTagMin float64 `yaml:"object_tag_min"`
	SceneTagMin  float64 `yaml:"scene_tag_min"`
	ColorTagMin  float64 `yaml:"color_tag_min"`

	PlacementMinConfidence float64 `yaml:"placement_min_confidence"`

	SharpnessWeight float64 `yaml:"sharpness_weight"`
	ExposureWeight  float64 `yaml:"exposure_weight"`
	NoiseWeight     float64 `yaml:"noise_weight"`

	ExposureTargetLow  float64 `yaml:"exposure_target_low"`
	ExposureTargetHigh float64 `yaml:"exposure_target_high"`

	LowSharpnessBelow float64 `yaml:"low_sharpness_below"`
	HighNoiseAbove    float64 `yaml:"high_noise_above"`
}

type IdentityConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold"`
	TieEpsilon      float64 `yaml:"tie_epsilon"`
}

// CollectionsConfig holds the support minimums and generation confidences
// for the smart collection generator. The minimums prevent degenerate
// one-item collections.
type CollectionsConfig struct {
	MinDateGroup     int `yaml:"min_date_group"`
	MinLocationGroup int `yaml:"min_location_group"`
	MinPersonGroup   int `yaml:"min_person_group"`

	DateConfidence     float64 `yaml:"date_confidence"`
	LocationConfidence float64 `yaml:"location_confidence"`
	PersonConfidence   float64 `yaml:"person_confidence"`
}

type JobsConfig struct {
	WorkerCount int `yaml:"worker_count"`
	QueueSize   int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with all defaults applied and no file read.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Detect.DetectionThreshold == 0 {
		cfg.Detect.DetectionThreshold = 0.5
	}
	if cfg.Detect.WorkerCount == 0 {
		cfg.Detect.WorkerCount = 4
	}
	if cfg.Detect.MaxAttempts == 0 {
		cfg.Detect.MaxAttempts = 3
	}
	if cfg.Detect.RetryBackoff == 0 {
		cfg.Detect.RetryBackoff = Duration(2 * time.Second)
	}
	if cfg.Scoring.ObjectTagMin == 0 {
		cfg.Scoring.ObjectTagMin = 0.6
	}
	if cfg.Scoring.SceneTagMin == 0 {
		cfg.Scoring.SceneTagMin = 0.7
	}
	if cfg.Scoring.ColorTagMin == 0 {
		cfg.Scoring.ColorTagMin = 0.6
	}
	if cfg.Scoring.PlacementMinConfidence == 0 {
		cfg.Scoring.PlacementMinConfidence = 0.5
	}
	if cfg.Scoring.SharpnessWeight == 0 {
		cfg.Scoring.SharpnessWeight = 0.4
	}
	if cfg.Scoring.ExposureWeight == 0 {
		cfg.Scoring.ExposureWeight = 0.35
	}
	if cfg.Scoring.NoiseWeight == 0 {
		cfg.Scoring.NoiseWeight = 0.25
	}
	if cfg.Scoring.ExposureTargetLow == 0 {
		cfg.Scoring.ExposureTargetLow = 0.35
	}
	if cfg.Scoring.ExposureTargetHigh == 0 {
		cfg.Scoring.ExposureTargetHigh = 0.65
	}
	if cfg.Scoring.LowSharpnessBelow == 0 {
		cfg.Scoring.LowSharpnessBelow = 0.3
	}
	if cfg.Scoring.HighNoiseAbove == 0 {
		cfg.Scoring.HighNoiseAbove = 0.7
	}
	if cfg.Identity.AcceptThreshold == 0 {
		cfg.Identity.AcceptThreshold = 0.6
	}
	if cfg.Identity.TieEpsilon == 0 {
		cfg.Identity.TieEpsilon = 0.01
	}
	if cfg.Collections.MinDateGroup == 0 {
		cfg.Collections.MinDateGroup = 5
	}
	if cfg.Collections.MinLocationGroup == 0 {
		cfg.Collections.MinLocationGroup = 3
	}
	if cfg.Collections.MinPersonGroup == 0 {
		cfg.Collections.MinPersonGroup = 3
	}
	if cfg.Collections.DateConfidence == 0 {
		cfg.Collections.DateConfidence = 0.9
	}
	if cfg.Collections.LocationConfidence == 0 {
		cfg.Collections.LocationConfidence = 0.8
	}
	if cfg.Collections.PersonConfidence == 0 {
		cfg.Collections.PersonConfidence = 0.85
	}
	if cfg.Jobs.WorkerCount == 0 {
		cfg.Jobs.WorkerCount = 4
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 64
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ML_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ML_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ML_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ML_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ML_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ML_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ML_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ML_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ML_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ML_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ML_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ML_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ML_MODELS_DIR"); v != "" {
		cfg.Detect.ModelsDir = v
	}
	if v := os.Getenv("ML_DETECT_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detect.WorkerCount = n
		}
	}
	if v := os.Getenv("ML_JOBS_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.WorkerCount = n
		}
	}
}
