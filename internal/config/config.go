package config

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "WABOT"

type Config struct {
	Environment       string
	HTTPAddr          string
	DataDir           string
	DBPath            string
	TranscriptRoot    string
	DispatchWorkers   int
	SchedulerPollSec  int
	HeartbeatStaleSec int

	WhatsAppEnabled  bool
	WhatsAppDBPath   string
	WhatsAppLogLevel string
	AdminPhone       string
	CommandPrefix    string
	EchoMarker       string
	Timezone         string

	BotSelectionTimeoutSec int
	CategoryTimeoutSec     int
	EditTimeoutSec         int
	OnboardingTimeoutSec   int

	LLMBaseURL            string
	LLMAPIKey             string
	LLMModel              string
	LLMTimeoutSec         int
	LLMMaxRetries         int
	LLMRateLimitPerWindow int
	LLMRateLimitWindowSec int
	LLMHistoryLines       int
	LLMSystemPrompt       string

	SheetsCredentialsFile string
	SheetsRange           string
	OverridesFile         string

	WeatherCity      string
	WeatherLatitude  float64
	WeatherLongitude float64
	WeatherAPIBase   string
	CryptoAPIBase    string
	FiatAPIBase      string
	NewsFeedBase     string
	NewsLanguage     string
	TenorAPIBase     string
	TenorAPIKey      string

	BriefingDefaultTimesCSV string

	AdminAPIURL         string
	AdminHTTPTimeoutSec int
}

// FromEnv reads WABOT_* variables, an optional .env file in the working
// directory and an optional config file named by WABOT_CONFIG.
func FromEnv() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file := strings.TrimSpace(v.GetString("config")); file != "" {
		v.SetConfigFile(file)
		_ = v.ReadInConfig()
	}

	dataDir := stringOrDefault(v, "data_dir", "/data")
	return Config{
		Environment:       stringOrDefault(v, "env", "development"),
		HTTPAddr:          stringOrDefault(v, "http_addr", ":8080"),
		DataDir:           dataDir,
		DBPath:            stringOrDefault(v, "db_path", filepath.Join(dataDir, "wabot", "meta.sqlite")),
		TranscriptRoot:    stringOrDefault(v, "transcript_root", filepath.Join(dataDir, "transcripts")),
		DispatchWorkers:   intOrDefault(v, "dispatch_workers", 8),
		SchedulerPollSec:  intOrDefault(v, "scheduler_poll_seconds", 15),
		HeartbeatStaleSec: intOrDefault(v, "heartbeat_stale_seconds", 120),

		WhatsAppEnabled:  boolOrDefault(v, "whatsapp_enabled", true),
		WhatsAppDBPath:   stringOrDefault(v, "whatsapp_db_path", filepath.Join(dataDir, "wabot", "whatsapp.sqlite")),
		WhatsAppLogLevel: strings.ToUpper(stringOrDefault(v, "whatsapp_log_level", "WARN")),
		AdminPhone:       digitsOnly(v.GetString("admin_phone")),
		CommandPrefix:    stringOrDefault(v, "command_prefix", "/"),
		EchoMarker:       stringOrDefault(v, "echo_marker", "\u200b"),
		Timezone:         stringOrDefault(v, "timezone", "America/Bogota"),

		BotSelectionTimeoutSec: intOrDefault(v, "bot_selection_timeout_seconds", 60),
		CategoryTimeoutSec:     intOrDefault(v, "category_timeout_seconds", 300),
		EditTimeoutSec:         intOrDefault(v, "edit_timeout_seconds", 300),
		OnboardingTimeoutSec:   intOrDefault(v, "onboarding_timeout_seconds", 900),

		LLMBaseURL:            stringOrDefault(v, "llm_base_url", "https://api.groq.com/openai/v1"),
		LLMAPIKey:             strings.TrimSpace(v.GetString("llm_api_key")),
		LLMModel:              stringOrDefault(v, "llm_model", "llama-3.3-70b-versatile"),
		LLMTimeoutSec:         intOrDefault(v, "llm_timeout_seconds", 60),
		LLMMaxRetries:         intOrDefault(v, "llm_max_retries", 3),
		LLMRateLimitPerWindow: intOrDefault(v, "llm_rate_limit_per_window", 8),
		LLMRateLimitWindowSec: intOrDefault(v, "llm_rate_limit_window_seconds", 60),
		LLMHistoryLines:       intOrDefault(v, "llm_history_lines", 12),
		LLMSystemPrompt:       stringOrDefault(v, "llm_system_prompt", "Eres un asistente útil que responde por WhatsApp. Sé breve y claro."),

		SheetsCredentialsFile: strings.TrimSpace(v.GetString("sheets_credentials_file")),
		SheetsRange:           stringOrDefault(v, "sheets_range", "Gastos!A:F"),
		OverridesFile:         stringOrDefault(v, "overrides_file", filepath.Join(dataDir, "wabot", "category_overrides.yaml")),

		WeatherCity:      stringOrDefault(v, "weather_city", "Bogotá"),
		WeatherLatitude:  floatOrDefault(v, "weather_latitude", 4.711),
		WeatherLongitude: floatOrDefault(v, "weather_longitude", -74.0721),
		WeatherAPIBase:   stringOrDefault(v, "weather_api_base", "https://api.open-meteo.com/v1"),
		CryptoAPIBase:    stringOrDefault(v, "crypto_api_base", "https://api.coingecko.com/api/v3"),
		FiatAPIBase:      stringOrDefault(v, "fiat_api_base", "https://open.er-api.com/v6"),
		NewsFeedBase:     stringOrDefault(v, "news_feed_base", "https://news.google.com/rss"),
		NewsLanguage:     stringOrDefault(v, "news_language", "es-419"),
		TenorAPIBase:     stringOrDefault(v, "tenor_api_base", "https://tenor.googleapis.com/v2"),
		TenorAPIKey:      strings.TrimSpace(v.GetString("tenor_api_key")),

		BriefingDefaultTimesCSV: stringOrDefault(v, "briefing_default_times", "07:00"),

		AdminAPIURL:         stringOrDefault(v, "admin_api_url", "http://127.0.0.1:8080"),
		AdminHTTPTimeoutSec: intOrDefault(v, "admin_http_timeout_seconds", 120),
	}
}

func stringOrDefault(v *viper.Viper, key, fallback string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(v *viper.Viper, key string, fallback int) int {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(v *viper.Viper, key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(v.GetString(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func floatOrDefault(v *viper.Viper, key string, fallback float64) float64 {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func digitsOnly(value string) string {
	var builder strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
