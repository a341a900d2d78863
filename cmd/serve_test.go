package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/templatemail/internal/config"
)

func TestApplyServeFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want config.Config
	}{
		{
			name: "no flags keeps environment values",
			args: nil,
			want: config.Config{HTTPAddr: "127.0.0.1:9000", MetricsAddr: ":9999"},
		},
		{
			name: "explicit http address wins",
			args: []string{"--http-addr", "0.0.0.0:8081"},
			want: config.Config{HTTPAddr: "0.0.0.0:8081", MetricsAddr: ":9999"},
		},
		{
			name: "metrics flags",
			args: []string{"--metrics-enabled", "--metrics-addr", ":9191"},
			want: config.Config{HTTPAddr: "127.0.0.1:9000", MetricsEnabled: true, MetricsAddr: ":9191"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newServeCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			opts := serveOptions{}
			opts.httpAddr, _ = cmd.Flags().GetString("http-addr")
			opts.metricsEnabled, _ = cmd.Flags().GetBool("metrics-enabled")
			opts.metricsAddr, _ = cmd.Flags().GetString("metrics-addr")

			cfg := &config.Config{HTTPAddr: "127.0.0.1:9000", MetricsAddr: ":9999"}
			applyServeFlags(cmd, opts, cfg)
			assert.Equal(t, tt.want, *cfg)
		})
	}
}

func TestJoinRecipients(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"jane@example.com"}, "jane@example.com"},
		{"trims and skips blanks", []string{" jane@example.com ", "", "sam@example.com"}, "jane@example.com, sam@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinRecipients(tt.in))
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	want := []string{"auth", "generate-docs", "mcp", "rewrite", "send", "serve", "templates", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
