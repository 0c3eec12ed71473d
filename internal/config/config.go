package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the runtime configuration of the gateway and the CLI.
type Config struct {
	Recognize RecognizeConfig `mapstructure:"recognize"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RecognizeConfig holds the recognize.im credentials and endpoints.
type RecognizeConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	APIKey            string        `mapstructure:"api_key"`
	ClapiKey          string        `mapstructure:"clapi_key"`
	SOAPEndpoint      string        `mapstructure:"soap_endpoint"`
	RecognizeEndpoint string        `mapstructure:"recognize_endpoint"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CheckLimits       bool          `mapstructure:"check_limits"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTAudience string `mapstructure:"jwt_audience"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from defaults, an optional config file, a .env
// file and RECOGNIZE_* environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setupViperConfig(v, configFile)
	bindEnvironmentVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports missing credentials.
func (c *Config) Validate() error {
	var missing []string
	if c.Recognize.ClientID == "" {
		missing = append(missing, "recognize.client_id")
	}
	if c.Recognize.APIKey == "" {
		missing = append(missing, "recognize.api_key")
	}
	if c.Recognize.ClapiKey == "" {
		missing = append(missing, "recognize.clapi_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadEnvFile() error {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("recognize")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/recognize")
	if home := os.Getenv("HOME"); home != "" {
		v.AddConfigPath(home + "/.config/recognize")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("RECOGNIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindEnvironmentVariables(v *viper.Viper) {
	v.BindEnv("recognize.client_id", "RECOGNIZE_CLIENT_ID")
	v.BindEnv("recognize.api_key", "RECOGNIZE_API_KEY")
	v.BindEnv("recognize.clapi_key", "RECOGNIZE_CLAPI_KEY")
	v.BindEnv("recognize.soap_endpoint", "RECOGNIZE_SOAP_ENDPOINT")
	v.BindEnv("recognize.recognize_endpoint", "RECOGNIZE_RECOGNIZE_ENDPOINT")
	v.BindEnv("recognize.timeout", "RECOGNIZE_TIMEOUT")
	v.BindEnv("recognize.check_limits", "RECOGNIZE_CHECK_LIMITS")

	v.BindEnv("server.addr", "RECOGNIZE_SERVER_ADDR")
	v.BindEnv("server.shutdown_timeout", "RECOGNIZE_SERVER_SHUTDOWN_TIMEOUT")

	v.BindEnv("redis.enabled", "RECOGNIZE_REDIS_ENABLED")
	v.BindEnv("redis.addr", "RECOGNIZE_REDIS_ADDR")
	v.BindEnv("redis.ttl", "RECOGNIZE_REDIS_TTL")

	v.BindEnv("auth.jwt_secret", "RECOGNIZE_JWT_SECRET", "JWT_SECRET")
	v.BindEnv("auth.jwt_audience", "RECOGNIZE_JWT_AUDIENCE", "JWT_AUDIENCE")

	v.BindEnv("logging.level", "RECOGNIZE_LOGGING_LEVEL")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recognize.soap_endpoint", "http://clapi.itraff.pl/")
	v.SetDefault("recognize.recognize_endpoint", "http://recognize.im/v2/recognize/")
	v.SetDefault("recognize.timeout", "30s")
	v.SetDefault("recognize.check_limits", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("logging.level", "info")
}
