// Package signupinfo parses signup statistics command flags and launches the
// service runtime.
package signupinfo

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/Scouterna/j26-signupinfo/internal/platform/cmd"
	platformgrpc "github.com/Scouterna/j26-signupinfo/internal/platform/grpc"
	"github.com/Scouterna/j26-signupinfo/internal/platform/timeouts"
	signupapp "github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/app"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/scoutnet"
)

// Config holds signup statistics command configuration.
type Config struct {
	Port           int           `env:"SIGNUPINFO_PORT" envDefault:"8095"`
	ProjectsText   string        `env:"SIGNUPINFO_PROJECTS"`
	ProjectsFile   string        `env:"SIGNUPINFO_PROJECTS_FILE"`
	APIBaseURL     string        `env:"SIGNUPINFO_API_BASE_URL" envDefault:"https://www.scoutnet.se/api/project/get"`
	CacheMaxAge    time.Duration `env:"SIGNUPINFO_CACHE_MAX_AGE" envDefault:"24h"`
	RequestTimeout time.Duration `env:"SIGNUPINFO_REQUEST_TIMEOUT" envDefault:"20s"`
	WarmInterval   time.Duration `env:"SIGNUPINFO_WARM_INTERVAL" envDefault:"0s"`
	AdultCutoff    string        `env:"SIGNUPINFO_ADULT_CUTOFF" envDefault:"2008-07-25"`
	SearchLimit    int           `env:"SIGNUPINFO_SEARCH_LIMIT" envDefault:"10"`
	DevCachePath   string        `env:"SIGNUPINFO_DEV_CACHE_PATH"`
	MCPTransport   string        `env:"SIGNUPINFO_MCP_TRANSPORT"`
	// Probe checks the health of a running instance instead of serving.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The health gRPC server port")
	fs.StringVar(&cfg.ProjectsFile, "projects-file", cfg.ProjectsFile, "YAML file listing the projects and their API keys")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "Registration API base URL")
	fs.DurationVar(&cfg.CacheMaxAge, "cache-max-age", cfg.CacheMaxAge, "Age after which the project cache is refreshed")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Timeout of one upstream request")
	fs.DurationVar(&cfg.WarmInterval, "warm-interval", cfg.WarmInterval, "Background staleness check period (0 disables)")
	fs.StringVar(&cfg.AdultCutoff, "adult-cutoff", cfg.AdultCutoff, "Birth date before which contact details are kept")
	fs.IntVar(&cfg.SearchLimit, "search-limit", cfg.SearchLimit, "Maximum member search hits")
	fs.StringVar(&cfg.DevCachePath, "dev-cache-path", cfg.DevCachePath, "SQLite upstream response cache for development")
	fs.StringVar(&cfg.MCPTransport, "mcp", cfg.MCPTransport, "MCP transport to serve (stdio)")
	fs.BoolVar(&cfg.Probe, "probe", cfg.Probe, "Check that the local instance serves a loaded cache and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Projects resolves the configured project list. A projects file takes
// precedence over the inline text.
func (cfg Config) Projects() ([]scoutnet.Project, error) {
	var (
		projects []scoutnet.Project
		err      error
	)
	switch {
	case strings.TrimSpace(cfg.ProjectsFile) != "":
		projects, err = scoutnet.LoadProjectsFile(cfg.ProjectsFile)
	case strings.TrimSpace(cfg.ProjectsText) != "":
		projects, err = scoutnet.ParseProjects([]byte(cfg.ProjectsText))
	default:
		return nil, errors.New("no projects configured: set SIGNUPINFO_PROJECTS or -projects-file")
	}
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	return projects, nil
}

// Run starts the signup statistics runtime.
func Run(ctx context.Context, cfg Config) error {
	projects, err := cfg.Projects()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSignupInfo, func(context.Context) error {
		return signupapp.Run(ctx, signupapp.RuntimeConfig{
			Port:           cfg.Port,
			Projects:       projects,
			APIBaseURL:     cfg.APIBaseURL,
			CacheMaxAge:    cfg.CacheMaxAge,
			RequestTimeout: cfg.RequestTimeout,
			WarmInterval:   cfg.WarmInterval,
			AdultCutoff:    cfg.AdultCutoff,
			SearchLimit:    cfg.SearchLimit,
			DevCachePath:   cfg.DevCachePath,
			MCPTransport:   cfg.MCPTransport,
		})
	})
}

// RunProbe reports whether the instance on the configured port serves a
// loaded project cache.
func RunProbe(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf("localhost:%d", cfg.Port)
	return platformgrpc.Probe(ctx, addr, signupapp.HealthService, timeouts.HealthCheck, log.Printf)
}
