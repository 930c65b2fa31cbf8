package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body    string
		want    func(*Config)
		wantErr bool
	}{
		"empty_file_keeps_defaults": {body: ""},
		"overrides": {
			body: "listen: \":9800\"\nduplicate_login: reject\nidle_timeout: 90s\nbroadcast_workers: 4\n",
			want: func(c *Config) {
				c.Listen = ":9800"
				c.DuplicateLogin = DuplicateReject
				c.IdleTimeout = 90 * time.Second
				c.BroadcastWorkers = 4
			},
		},
		"unknown_key":      {body: "listne: \":9800\"\n", wantErr: true},
		"bad_policy":       {body: "duplicate_login: share\n", wantErr: true},
		"no_listeners":     {body: "listen: \"\"\n", wantErr: true},
		"negative_timeout": {body: "write_timeout: -1s\n", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := LoadConfig(writeConfig(t, tc.body))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := DefaultConfig()
			if tc.want != nil {
				tc.want(&want)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
