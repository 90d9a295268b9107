package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	kept := BaseModel{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	require.Equal(t, "fixed", kept.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	user := &User{}
	require.NoError(t, user.BeforeCreate(nil))
	require.NotEmpty(t, user.ID)

	role := &Role{}
	require.NoError(t, role.BeforeCreate(nil))
	require.NotEmpty(t, role.ID)
}

func TestClassifyDevice(t *testing.T) {
	cases := map[string]DeviceClass{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148": DeviceMobile,
		"okhttp/4.9 MOBILE":                     DeviceMobile,
		"Mozilla/5.0 (Windows NT 10.0; Win64)":  DeviceOther,
		"":                                      DeviceOther,
	}
	for ua, want := range cases {
		require.Equal(t, want, ClassifyDevice(ua), ua)
	}
}

func TestSessionRotationExpiredBoundary(t *testing.T) {
	expiry := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{RefreshExpiresAt: expiry, DeviceClass: DeviceMobile}

	require.False(t, s.RotationExpired(expiry.Add(-time.Second)))
	require.False(t, s.RotationExpired(expiry))
	require.True(t, s.RotationExpired(expiry.Add(time.Nanosecond)))
	require.True(t, s.IsMobile())
}

func TestUserRoleName(t *testing.T) {
	var nilUser *User
	require.Empty(t, nilUser.RoleName())
	require.Empty(t, (&User{}).RoleName())
	require.Equal(t, RoleAdmin, (&User{Role: &Role{Name: RoleAdmin}}).RoleName())
}
