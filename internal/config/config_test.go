package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("")
	req.NoError(err)
	req.Equal(5000, cfg.Port)
	req.Equal(StoreBadger, cfg.StoreDriver)
	req.Equal(EventsLog, cfg.EventsDriver)
	req.Equal(time.Hour, cfg.JWTTTL)
	req.True(cfg.Live.RequireAuth)
	req.Equal(256, cfg.Live.SendBuffer)
	req.Equal(54*time.Second, cfg.Live.PingInterval)
	req.Equal(60*time.Second, cfg.Live.PongWait)
	req.Equal(int64(524288), cfg.Live.MaxMessageBytes)
	req.Equal(int64(5<<20), cfg.MaxAvatarBytes)
}

func TestLoad_Requires_Secret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_Env_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("JWT_SECRET=from-file\nSTORE_DRIVER=postgres\n"), 0o600))
	// godotenv.Load sets variables; register them for cleanup.
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("STORE_DRIVER")

	cfg, err := Load(path)
	req.NoError(err)
	req.Equal("from-file", cfg.JWTSecret)
	req.Equal(StorePostgres, cfg.StoreDriver)
}

func TestLoad_Missing_Env_File_Is_Ignored(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	t.Run("unknown store driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mongo")
		_, err := Load("")
		require.ErrorContains(t, err, "STORE_DRIVER")
	})

	t.Run("unknown events driver", func(t *testing.T) {
		t.Setenv("EVENTS_DRIVER", "kafka")
		_, err := Load("")
		require.ErrorContains(t, err, "EVENTS_DRIVER")
	})

	t.Run("ping must be shorter than pong wait", func(t *testing.T) {
		t.Setenv("LIVE_PING_INTERVAL", "2m")
		_, err := Load("")
		require.ErrorContains(t, err, "LIVE_PING_INTERVAL")
	})

	for _, name := range []string{"LIVE_PING_INTERVAL", "LIVE_PONG_WAIT", "OUTBOX_INTERVAL"} {
		t.Run(name+" must be positive", func(t *testing.T) {
			t.Setenv(name, "0s")
			_, err := Load("")
			require.ErrorContains(t, err, name)
		})
	}
}

func TestLoadProxy_Does_Not_Need_Secret(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("PROXY_PORT", "4000")

	cfg, err := LoadProxy("")
	req.NoError(err)
	req.Equal(4000, cfg.ProxyPort)
	req.Equal("https://techtest.youapp.ai", cfg.ProxyTarget)
}
