package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	AllowAllCORS      bool   `mapstructure:"ALLOW_ALL_CORS"`

	// Public base URL used to build carrier webhook and stream URLs.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// Call execution.
	SimulatedCalls     bool `mapstructure:"SIMULATED_CALLS"`
	RealCallTimeoutSec int  `mapstructure:"REAL_CALL_TIMEOUT_SEC"`
	SimCallTimeoutSec  int  `mapstructure:"SIM_CALL_TIMEOUT_SEC"`
	ToolTimeoutSec     int  `mapstructure:"TOOL_TIMEOUT_SEC"`

	// Twilio configuration.
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioCallerID   string `mapstructure:"TWILIO_CALLER_ID"`

	// Conversational agent (ElevenLabs ConvAI).
	ElevenLabsAPIKey  string `mapstructure:"ELEVENLABS_API_KEY"`
	ElevenLabsAgentID string `mapstructure:"ELEVENLABS_AGENT_ID"`

	// External collaborator feature flags.
	UseGooglePlaces    bool   `mapstructure:"USE_GOOGLE_PLACES"`
	GooglePlacesAPIKey string `mapstructure:"GOOGLE_PLACES_API_KEY"`
	UseGoogleDistance  bool   `mapstructure:"USE_GOOGLE_DISTANCE"`
	GoogleMapsAPIKey   string `mapstructure:"GOOGLE_MAPS_API_KEY"`

	// Redis configuration (provider search cache).
	UseRedisCache bool   `mapstructure:"USE_REDIS_CACHE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("ALLOW_ALL_CORS", true)
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	viper.SetDefault("SIMULATED_CALLS", true)
	viper.SetDefault("REAL_CALL_TIMEOUT_SEC", 120)
	viper.SetDefault("SIM_CALL_TIMEOUT_SEC", 30)
	viper.SetDefault("TOOL_TIMEOUT_SEC", 10)
	viper.SetDefault("USE_GOOGLE_PLACES", false)
	viper.SetDefault("USE_GOOGLE_DISTANCE", false)
	viper.SetDefault("USE_REDIS_CACHE", false)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
