package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait())
	assert.Equal(t, 2*time.Second, cfg.Relay.SendTimeout)
	assert.Equal(t, 2, cfg.Relay.RoomCapacity)
	assert.Equal(t, int64(5), cfg.Credits.BookingCost)
	assert.Equal(t, int64(10), cfg.Credits.Reward)
	assert.True(t, cfg.Credits.ChargeAtRequest)
	assert.False(t, cfg.Lifecycle.RejectDuplicates)
	assert.Equal(t, "skillxchange", cfg.Room.Prefix)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := `
port: 9090
credits:
  reward: 20
  charge_at_request: false
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o600))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("SKILLCALL_LIFECYCLE_REJECT_DUPLICATES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, int64(20), cfg.Credits.Reward)
	assert.False(t, cfg.Credits.ChargeAtRequest)
	assert.True(t, cfg.Lifecycle.RejectDuplicates)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:       8080,
			PingPeriod: time.Second,
			Relay:      RelayConfig{SendBuffer: 1},
			Room:       RoomConfig{Prefix: "room"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Credits.Reward = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Room.Prefix = "bad_prefix"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ICEServers = []ICEServer{{}}
	assert.Error(t, cfg.Validate())
}
