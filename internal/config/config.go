package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `validate:"required"`
	Environment    string   // ENV: production, development, etc.
	AllowedOrigins []string `validate:"min=1"`
	LogLevel       string

	BackendURL    string `validate:"required,url"`
	FilesEndpoint string `validate:"required,url"`
	BearerToken   string // optional seed for the credential store
	RedisURI      string `validate:"required"`

	UserID   string `validate:"required"`
	Username string

	UploadTarget        string `validate:"oneof=backend cloudinary"`
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RequestTimeout              time.Duration `validate:"gt=0"`
	UploadMaxBytes              int64         `validate:"gt=0"`
	UploadTimeout               time.Duration `validate:"gt=0"`
	TypingQuietWindow           time.Duration `validate:"gt=0"`
	SidebarThrottle             time.Duration `validate:"gt=0"`
	SidebarDelay                time.Duration `validate:"gte=0"`
	FileURLMaxLen               int           `validate:"gt=0"`
	OpeningMessage              string        `validate:"required"`
	RemoveParticipantClosesView bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BACKEND_URL", "http://localhost:8000/api")
	v.SetDefault("FILES_ENDPOINT", "http://localhost:8000/files")
	v.SetDefault("BEARER_TOKEN", "")
	v.SetDefault("REDIS_URI", "redis://localhost:6379/0")
	v.SetDefault("CHAT_USER_ID", "")
	v.SetDefault("CHAT_USERNAME", "")
	v.SetDefault("UPLOAD_TARGET", "backend")
	v.SetDefault("CLOUDINARY_CLOUD_NAME", "")
	v.SetDefault("CLOUDINARY_API_KEY", "")
	v.SetDefault("CLOUDINARY_API_SECRET", "")
	v.SetDefault("REQUEST_TIMEOUT", 15*time.Second)
	v.SetDefault("UPLOAD_MAX_BYTES", int64(20<<20))
	v.SetDefault("UPLOAD_TIMEOUT", 30*time.Second)
	v.SetDefault("TYPING_QUIET_WINDOW", 500*time.Millisecond)
	v.SetDefault("SIDEBAR_THROTTLE", 2000*time.Millisecond)
	v.SetDefault("SIDEBAR_DELAY", 1500*time.Millisecond)
	v.SetDefault("FILE_URL_MAX_LEN", 200)
	v.SetDefault("DIRECT_CHAT_OPENING_MESSAGE", "Hello! 👋")
	v.SetDefault("REMOVE_PARTICIPANT_CLOSES_VIEW", false)
}

// Load reads the configuration from the environment. Call godotenv first if a
// .env file should be honoured.
func Load() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                        v.GetString("PORT"),
		Environment:                 strings.ToLower(strings.TrimSpace(v.GetString("ENV"))),
		AllowedOrigins:              parseOrigins(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:                    v.GetString("LOG_LEVEL"),
		BackendURL:                  strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
		FilesEndpoint:               strings.TrimRight(v.GetString("FILES_ENDPOINT"), "/"),
		BearerToken:                 strings.TrimSpace(v.GetString("BEARER_TOKEN")),
		RedisURI:                    v.GetString("REDIS_URI"),
		UserID:                      strings.TrimSpace(v.GetString("CHAT_USER_ID")),
		Username:                    strings.TrimSpace(v.GetString("CHAT_USERNAME")),
		UploadTarget:                strings.ToLower(strings.TrimSpace(v.GetString("UPLOAD_TARGET"))),
		CloudinaryName:              v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:            v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:         v.GetString("CLOUDINARY_API_SECRET"),
		RequestTimeout:              v.GetDuration("REQUEST_TIMEOUT"),
		UploadMaxBytes:              v.GetInt64("UPLOAD_MAX_BYTES"),
		UploadTimeout:               v.GetDuration("UPLOAD_TIMEOUT"),
		TypingQuietWindow:           v.GetDuration("TYPING_QUIET_WINDOW"),
		SidebarThrottle:             v.GetDuration("SIDEBAR_THROTTLE"),
		SidebarDelay:                v.GetDuration("SIDEBAR_DELAY"),
		FileURLMaxLen:               v.GetInt("FILE_URL_MAX_LEN"),
		OpeningMessage:              v.GetString("DIRECT_CHAT_OPENING_MESSAGE"),
		RemoveParticipantClosesView: v.GetBool("REMOVE_PARTICIPANT_CLOSES_VIEW"),
	}
	if cfg.Username == "" {
		cfg.Username = cfg.UserID
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.UploadTarget == "cloudinary" && !cfg.CloudinaryConfigured() {
		return nil, fmt.Errorf("invalid configuration: UPLOAD_TARGET=cloudinary needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
	}
	return cfg, nil
}

func parseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !containsOrigin(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	for _, v := range list {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CloudinaryConfigured reports whether all Cloudinary credentials are set.
func (c *Config) CloudinaryConfigured() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}
