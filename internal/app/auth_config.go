package app

import (
	"time"

	"github.com/charlesng35/shopapp/internal/auth"
)

// TokenCodecConfig converts AuthConfig into the parameters expected by the token codec.
func (c AuthConfig) TokenCodecConfig() auth.TokenCodecConfig {
	return auth.TokenCodecConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
	}
}

// SessionManagerConfig converts AuthConfig into SessionManager parameters.
func (c AuthConfig) SessionManagerConfig() auth.SessionManagerConfig {
	access := c.JWT.TTL
	if access <= 0 {
		access = auth.DefaultAccessTokenTTL
	}

	refresh := c.Session.RefreshTTL
	if refresh <= 0 {
		refresh = auth.DefaultRefreshTokenTTL
	}

	maxSessions := c.Session.MaxSessions
	if maxSessions <= 0 {
		maxSessions = auth.DefaultMaxSessions
	}

	return auth.SessionManagerConfig{
		AccessTokenTTL:  access,
		RefreshTokenTTL: refresh,
		MaxSessions:     maxSessions,
	}
}

// BootstrapAdmin reports whether an administrator account should be ensured on start-up.
func (c AuthConfig) BootstrapAdmin() bool {
	return c.Admin.PhoneNumber != "" && c.Admin.Password != ""
}

// window falls back to a minute when unset.
func (c RateLimitConfig) window() time.Duration {
	if c.Window <= 0 {
		return time.Minute
	}
	return c.Window
}

// Limits returns the request budget and window, with zero requests when limiting is disabled.
func (c RateLimitConfig) Limits() (int, time.Duration) {
	if !c.Enabled || c.Requests <= 0 {
		return 0, c.window()
	}
	return c.Requests, c.window()
}
