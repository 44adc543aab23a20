package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration for the backtest engine
// process: storage, the admin/control API, the outbound event bus, and
// the default virtual-trading parameters new strategies start with.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	EventBus EventBusConfig `yaml:"eventBus"`
	Backtest BacktestConfig `yaml:"backtest"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Environment variables (from .env)
	BybitAPIKey  string
	BybitSecret  string
	BybitTestnet bool
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type EventBusConfig struct {
	Port int `yaml:"port"`
}

// BacktestConfig holds the virtual trading system defaults (spec.md
// §4.2) applied to every strategy the supervisor creates; the graph
// document has no field that overrides them.
type BacktestConfig struct {
	InitialBalance float64 `yaml:"initialBalance"`
	Leverage       float64 `yaml:"leverage"`
	FeeRate        float64 `yaml:"feeRate"`
	FixtureDir     string  `yaml:"fixtureDir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment and YAML file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Path: getEnvOrDefault("DATABASE_PATH", "./data.db"),
		},
		API: APIConfig{
			Port:    getEnvIntOrDefault("API_PORT", 8080),
			Timeout: time.Duration(getEnvIntOrDefault("API_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		EventBus: EventBusConfig{
			Port: getEnvIntOrDefault("EVENTBUS_PORT", 8082),
		},
		Backtest: BacktestConfig{
			InitialBalance: getEnvFloatOrDefault("BACKTEST_INITIAL_BALANCE", 10000),
			Leverage:       getEnvFloatOrDefault("BACKTEST_LEVERAGE", 1),
			FeeRate:        getEnvFloatOrDefault("BACKTEST_FEE_RATE", 0.0004),
			FixtureDir:     getEnvOrDefault("BACKTEST_FIXTURE_DIR", "./fixtures"),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		BybitAPIKey:  os.Getenv("BYBIT_API_KEY"),
		BybitSecret:  os.Getenv("BYBIT_SECRET"),
		BybitTestnet: getEnvOrDefault("BYBIT_TESTNET", "false") == "true",
	}

	// Load YAML config if it exists
	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := parseIntSafe(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseIntSafe(s string) (int, error) {
	var result int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &parseError{s}
		}
		result = result*10 + int(c-'0')
	}
	return result, nil
}

type parseError struct {
	value string
}

func (e *parseError) Error() string {
	return "invalid integer: " + e.value
}