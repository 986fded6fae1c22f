package app

import (
	iauth "github.com/mhalloran/curbshare/internal/auth"
)

// JWTServiceConfig converts JWT settings to the auth package representation.
func (c AuthConfig) JWTServiceConfig() iauth.JWTConfig {
	cfg := iauth.JWTConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
	}
	if c.JWT.TTL > 0 {
		cfg.AccessTokenTTL = c.JWT.TTL
	}
	return cfg
}

// SessionServiceConfig converts session settings to the auth package representation.
func (c AuthConfig) SessionServiceConfig() iauth.SessionConfig {
	cfg := iauth.SessionConfig{}
	if c.Session.RefreshTTL > 0 {
		cfg.RefreshTokenTTL = c.Session.RefreshTTL
	}
	if c.Session.RefreshLength > 0 {
		cfg.RefreshLength = c.Session.RefreshLength
	}
	return cfg
}
