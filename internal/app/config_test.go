package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/mhalloran/curbshare/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 50, cfg.Server.RateLimit)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "curbshare-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, "smtp-user", cfg.Email.SMTP.Username)
	require.Equal(t, "smtp-pass", cfg.Email.SMTP.Password)
	require.Equal(t, "no-reply@example.com", cfg.Email.SMTP.From)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, 3, cfg.Limits.MaxOpenInvites)
	require.Equal(t, 7, cfg.Limits.MaxOpenRequests)
	// Untouched keys keep their defaults.
	require.Equal(t, 5, cfg.Limits.MaxGroupsCreated)
	require.Equal(t, 20, cfg.Limits.MaxGroupsJoined)

	require.Equal(t, "https://curbshare.example.com/invites", cfg.Invites.BaseURL)

	require.False(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.SessionCleanupCron)
	require.Equal(t, 14, cfg.Maintenance.InviteRetentionDays)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret: "secret",
			Issuer: "issuer",
			TTL:    30 * time.Minute,
		},
		Session: SessionSettings{
			RefreshTTL:    10 * time.Hour,
			RefreshLength: 32,
		},
	}

	require.Equal(t, iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	require.Equal(t, iauth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, cfg.SessionServiceConfig())
}

func TestDatabaseSettingsAdapter(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "postgres",
		Postgres: DBAuthConfig{
			Host:     "db.example.com",
			Port:     5433,
			Database: "curbshare",
			Username: "user",
			Password: "pass",
		},
	}

	settings := cfg.DatabaseSettings()
	require.Equal(t, "postgres", settings.Driver)
	require.Equal(t, "db.example.com", settings.Host)
	require.Equal(t, 5433, settings.Port)
	require.Equal(t, "curbshare", settings.Name)
	require.Equal(t, "user", settings.User)
	require.Equal(t, "pass", settings.Password)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
