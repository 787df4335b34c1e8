package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gate_monitor", cfg.Database.Name)
	assert.Equal(t, 120.0, cfg.Tracker.MatchRadius)
	assert.Equal(t, 3*time.Second, cfg.Tracker.GapTimeout)
	assert.Equal(t, 15, cfg.Tracker.MaxTrackLen)
	assert.Equal(t, 60, cfg.Tracker.MaxObservations)
	assert.Equal(t, "IN", cfg.Camera.Direction)
	assert.Equal(t, 5*time.Second, cfg.Whitelist.CacheTTL)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GATE_CAMERA_DIRECTION", "OUT")
	t.Setenv("GATE_TRACKER_MAX_TRACK_LEN", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "OUT", cfg.Camera.Direction)
	assert.Equal(t, 30, cfg.Tracker.MaxTrackLen)
}

func TestInvalidDirectionRejected(t *testing.T) {
	t.Setenv("GATE_CAMERA_DIRECTION", "SIDEWAYS")

	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidTrackerKnobsRejected(t *testing.T) {
	cases := []struct {
		name string
		env  string
		val  string
	}{
		{"zero track length", "GATE_TRACKER_MAX_TRACK_LEN", "0"},
		{"negative gap timeout", "GATE_TRACKER_GAP_TIMEOUT", "-1s"},
		{"zero match radius", "GATE_TRACKER_MATCH_RADIUS", "0"},
		{"zero observation cap", "GATE_TRACKER_MAX_OBSERVATIONS", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.env, tc.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.local",
		Port:     5433,
		User:     "gate",
		Password: "secret",
		Name:     "events",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.local port=5433 user=gate password=secret dbname=events sslmode=require",
		d.DSN())
}
