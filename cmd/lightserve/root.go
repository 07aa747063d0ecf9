package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lightserve/internal/config"
	"lightserve/internal/gateway"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const envConfig = "LIGHTSERVE_CONFIG"

type serveFlags struct {
	configPath  string
	addr        string
	backend     string
	modelName   string
	logLevel    string
	logFormat   string
	corsOrigins string
	sets        []string
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	root := &cobra.Command{
		Use:           "lightserve",
		Short:         "OpenAI-compatible inference gateway for a single model backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(getenv), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "lightserve", version)
			return err
		},
	}
}

func newServeCmd(getenv func(string) string) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the backend and serve the HTTP API",
		Example: "  lightserve serve --config lightserve.yaml\n" +
			"  lightserve serve --config lightserve.yaml --backend echo --set max_num_seqs=8",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(f, getenv)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			g, err := gateway.New(cfg, gateway.Options{Logger: logger})
			if err != nil {
				return err
			}
			return g.Run(cmd.Context())
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", getenv(envConfig), "Config file (.yaml, .json, .toml); defaults to "+envConfig)
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8000 (defaults "+config.EnvAddr+" or config)")
	fl.StringVar(&f.backend, "backend", "", "Override the runtime backend kind")
	fl.StringVar(&f.modelName, "model-name", "", "Override the served model name")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults "+config.EnvLogLevel+" or config)")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format: json|console")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS")
	fl.StringArrayVar(&f.sets, "set", nil, "Override a runtime option, key=value (repeatable)")
	return cmd
}

// buildConfig loads the file and layers flags, then environment, then defaults.
func buildConfig(f *serveFlags, getenv func(string) string) (config.Config, error) {
	if strings.TrimSpace(f.configPath) == "" {
		return config.Config{}, fmt.Errorf("--config is required (or set %s)", envConfig)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = origins
	}

	if cfg.Runtime == nil {
		cfg.Runtime = map[string]any{}
	}
	for _, kv := range f.sets {
		k, v, err := parseSet(kv)
		if err != nil {
			return cfg, err
		}
		cfg.Runtime[k] = v
	}
	if f.backend != "" {
		cfg.Runtime[config.KeyBackend] = f.backend
	}
	if f.modelName != "" {
		cfg.Runtime[config.KeyModelName] = f.modelName
	}

	cfg.ApplyEnv(getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// parseSet splits key=value and decodes the value as a YAML scalar so that
// true, 8 and null keep their types.
func parseSet(kv string) (string, any, error) {
	k, raw, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", nil, fmt.Errorf("--set %q: want key=value", kv)
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil, fmt.Errorf("--set %s: %w", k, err)
	}
	return k, v, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// exitCode prints err and maps it to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "lightserve:", err)
	return 1
}
