package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type RateLimitConfig struct {
	IssueCreateMax    int           `mapstructure:"issue_create_max"`
	IssueCreateWindow time.Duration `mapstructure:"issue_create_window"`
	LoginMax          int           `mapstructure:"login_max"`
	LoginWindow       time.Duration `mapstructure:"login_window"`
	ConnectMax        int           `mapstructure:"connect_max"`
	ConnectWindow     time.Duration `mapstructure:"connect_window"`
}

type NotificationConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SMSConfig struct {
	From   string `mapstructure:"from"`
	APIKey string `mapstructure:"api_key"`
}

type Config struct {
	DatabaseURL    string             `mapstructure:"database_url"`
	ServerPort     string             `mapstructure:"server_port"`
	JWTSecret      string             `mapstructure:"jwt_secret"`
	AllowedOrigins []string           `mapstructure:"allowed_origins"`
	RateLimits     RateLimitConfig    `mapstructure:"rate_limits"`
	Notifications  NotificationConfig `mapstructure:"notifications"`
	Email          EmailConfig        `mapstructure:"email"`
	SMS            SMSConfig          `mapstructure:"sms"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if config.RateLimits.IssueCreateMax == 0 {
		config.RateLimits.IssueCreateMax = 20
	}
	if config.RateLimits.IssueCreateWindow == 0 {
		config.RateLimits.IssueCreateWindow = time.Hour
	}
	if config.RateLimits.LoginMax == 0 {
		config.RateLimits.LoginMax = 5
	}
	if config.RateLimits.LoginWindow == 0 {
		config.RateLimits.LoginWindow = 15 * time.Minute
	}
	if config.RateLimits.ConnectMax == 0 {
		config.RateLimits.ConnectMax = 30
	}
	if config.RateLimits.ConnectWindow == 0 {
		config.RateLimits.ConnectWindow = time.Minute
	}

	if config.Notifications.TTL == 0 {
		config.Notifications.TTL = 30 * 24 * time.Hour
	}
	if config.Notifications.GCInterval == 0 {
		config.Notifications.GCInterval = time.Hour
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}

	return &config
}
