package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Model    ModelConfig
	Training TrainingConfig
	Pipeline PipelineConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int `validate:"gte=1,lte=65535"`
}

type DatabaseConfig struct {
	Host     string
	Port     int `validate:"gte=1,lte=65535"`
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL returns the connection string in URL form, as pgxpool expects it.
// Credentials are escaped.
func (d DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig is optional: an empty Host disables caching and pub/sub.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

type CORSConfig struct {
	AllowedOrigins string
}

type ModelConfig struct {
	Dir             string `validate:"required"`
	Mode            string `validate:"oneof=inference demo"`
	HistoryMonths   int    `validate:"gte=0"`
	CacheTTLSeconds int    `validate:"gte=0"`
}

type TrainingConfig struct {
	TrainTestSplit  float64 `validate:"gt=0,lt=1"`
	MinTrainingRows int     `validate:"gte=2"`
	Workers         int     `validate:"gte=1"`
	Source          string  `validate:"oneof=db file"`
	NEstimators     int     `validate:"gte=1"`
	MaxDepth        int     `validate:"gte=1"`
	LearningRate    float64 `validate:"gt=0"`
	Subsample       float64 `validate:"gt=0,lte=1"`
	ColSample       float64 `validate:"gt=0,lte=1"`
	Seed            int64
}

type PipelineConfig struct {
	SourcesFile string
	InputDir    string
	PanelFile   string `validate:"required"`
	OutputsDir  string `validate:"required"`
	WriteDB     bool
}

type MetricsConfig struct {
	PushgatewayURL string
}

type LogConfig struct {
	Level  string
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or a file path
}

// LoadConfig reads envFile (if it exists) into the process environment and
// then builds the configuration from environment variables.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	historyMonths, err := getIntEnv("HISTORY_MONTHS", 12)
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_MONTHS: %w", err)
	}
	cacheTTL, err := getIntEnv("FORECAST_CACHE_TTL_SEC", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_CACHE_TTL_SEC: %w", err)
	}

	training, err := loadTrainingConfig()
	if err != nil {
		return nil, err
	}

	writeDB, err := getBoolEnv("PIPELINE_WRITE_DB", true)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_WRITE_DB: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "hpi"),
			Password: getEnv("DB_PASSWORD", "hpi_dev_password"),
			Name:     getEnv("DB_NAME", "hpi"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     redisPort,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Model: ModelConfig{
			Dir:             getEnv("MODEL_DIR", "models"),
			Mode:            strings.ToLower(getEnv("PREDICTOR_MODE", "inference")),
			HistoryMonths:   historyMonths,
			CacheTTLSeconds: cacheTTL,
		},
		Training: training,
		Pipeline: PipelineConfig{
			SourcesFile: os.Getenv("SOURCES_FILE"),
			InputDir:    os.Getenv("INPUT_DIR"),
			PanelFile:   getEnv("PANEL_FILE", "data/housing_econ_wide.csv"),
			OutputsDir:  getEnv("OUTPUTS_DIR", "outputs"),
			WriteDB:     writeDB,
		},
		Metrics: MetricsConfig{
			PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadTrainingConfig() (TrainingConfig, error) {
	var t TrainingConfig
	var err error

	if t.TrainTestSplit, err = getFloatEnv("TRAIN_TEST_SPLIT", 0.8); err != nil {
		return t, fmt.Errorf("invalid TRAIN_TEST_SPLIT: %w", err)
	}
	if t.MinTrainingRows, err = getIntEnv("MIN_TRAINING_ROWS", 24); err != nil {
		return t, fmt.Errorf("invalid MIN_TRAINING_ROWS: %w", err)
	}
	if t.Workers, err = getIntEnv("TRAIN_WORKERS", 1); err != nil {
		return t, fmt.Errorf("invalid TRAIN_WORKERS: %w", err)
	}
	if t.NEstimators, err = getIntEnv("GBM_N_ESTIMATORS", 500); err != nil {
		return t, fmt.Errorf("invalid GBM_N_ESTIMATORS: %w", err)
	}
	if t.MaxDepth, err = getIntEnv("GBM_MAX_DEPTH", 5); err != nil {
		return t, fmt.Errorf("invalid GBM_MAX_DEPTH: %w", err)
	}
	if t.LearningRate, err = getFloatEnv("GBM_LEARNING_RATE", 0.05); err != nil {
		return t, fmt.Errorf("invalid GBM_LEARNING_RATE: %w", err)
	}
	if t.Subsample, err = getFloatEnv("GBM_SUBSAMPLE", 0.8); err != nil {
		return t, fmt.Errorf("invalid GBM_SUBSAMPLE: %w", err)
	}
	if t.ColSample, err = getFloatEnv("GBM_COLSAMPLE", 0.8); err != nil {
		return t, fmt.Errorf("invalid GBM_COLSAMPLE: %w", err)
	}
	seed, err := getIntEnv("GBM_SEED", 42)
	if err != nil {
		return t, fmt.Errorf("invalid GBM_SEED: %w", err)
	}
	t.Seed = int64(seed)
	t.Source = strings.ToLower(getEnv("TRAINER_SOURCE", "db"))
	return t, nil
}

var validate = newValidator()

// Validate checks value ranges and enumerations on the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("column", validColumn)
	return v
}
