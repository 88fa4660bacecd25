package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHAT_USER_ID", "inst-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "inst-1", cfg.Username, "username falls back to the user id")
	assert.Equal(t, "backend", cfg.UploadTarget)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(20<<20), cfg.UploadMaxBytes)
	assert.Equal(t, 30*time.Second, cfg.UploadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.TypingQuietWindow)
	assert.Equal(t, 2*time.Second, cfg.SidebarThrottle)
	assert.Equal(t, 1500*time.Millisecond, cfg.SidebarDelay)
	assert.Equal(t, 200, cfg.FileURLMaxLen)
	assert.Equal(t, "Hello! 👋", cfg.OpeningMessage)
	assert.False(t, cfg.RemoveParticipantClosesView)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CHAT_USER_ID", "inst-1")
	t.Setenv("CHAT_USERNAME", "Ina")
	t.Setenv("ENV", " Production ")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://APP.example.com ,https://admin.example.com")
	t.Setenv("BACKEND_URL", "https://api.example.com/api/")
	t.Setenv("TYPING_QUIET_WINDOW", "750ms")
	t.Setenv("SIDEBAR_DELAY", "0s")
	t.Setenv("REMOVE_PARTICIPANT_CLOSES_VIEW", "true")
	t.Setenv("UPLOAD_MAX_BYTES", "1048576")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "Ina", cfg.Username)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://api.example.com/api", cfg.BackendURL)
	assert.Equal(t, 750*time.Millisecond, cfg.TypingQuietWindow)
	assert.Zero(t, cfg.SidebarDelay)
	assert.True(t, cfg.RemoveParticipantClosesView)
	assert.Equal(t, int64(1<<20), cfg.UploadMaxBytes)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]interface{}
	}{
		{"missing user id", map[string]interface{}{}},
		{"bad backend url", map[string]interface{}{"CHAT_USER_ID": "u", "BACKEND_URL": "not a url"}},
		{"no origins", map[string]interface{}{"CHAT_USER_ID": "u", "ALLOWED_ORIGINS": " , "}},
		{"unknown upload target", map[string]interface{}{"CHAT_USER_ID": "u", "UPLOAD_TARGET": "s3"}},
		{"cloudinary without credentials", map[string]interface{}{"CHAT_USER_ID": "u", "UPLOAD_TARGET": "cloudinary"}},
		{"zero quiet window", map[string]interface{}{"CHAT_USER_ID": "u", "TYPING_QUIET_WINDOW": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.SetTypeByDefaultValue(true)
			setDefaults(v)
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := fromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestFromViper_CloudinaryTarget(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CHAT_USER_ID", "u")
	v.Set("UPLOAD_TARGET", "Cloudinary")
	v.Set("CLOUDINARY_CLOUD_NAME", "demo")
	v.Set("CLOUDINARY_API_KEY", "key")
	v.Set("CLOUDINARY_API_SECRET", "secret")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "cloudinary", cfg.UploadTarget)
	assert.True(t, cfg.CloudinaryConfigured())
}
