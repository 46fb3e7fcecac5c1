// Command quotactl inspeciona e zera cotas do endpoint de try-on.
//
// Uso:
//
//	quotactl status 203.0.113.9
//	quotactl reset 203.0.113.9
//	quotactl reset --all
//	quotactl --server http://localhost:8080 status 203.0.113.9
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage"
	"github.com/JeanGrijp/tryon-quota/internal/config"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
	"github.com/JeanGrijp/tryon-quota/internal/core/services"
	"github.com/JeanGrijp/tryon-quota/internal/logging"
)

type CLI struct {
	Status StatusCmd `cmd:"" help:"Show hourly and daily usage for an identity."`
	Reset  ResetCmd  `cmd:"" help:"Reset the quota of one identity, or of every identity with --all."`

	Server   string `help:"Base URL of a running server. Uses its admin API instead of opening the store." env:"QUOTACTL_SERVER" placeholder:"URL"`
	Token    string `help:"Admin token sent as X-Admin-Token with --server." env:"ADMIN_TOKEN"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`

	out   io.Writer
	admin ports.QuotaAdmin
}

type StatusCmd struct {
	Identity string `arg:"" help:"Client identity, usually an IP address."`
}

func (c *StatusCmd) Run(cli *CLI) error {
	admin, closeFn, err := cli.openAdmin(context.Background())
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := admin.Status(context.Background(), c.Identity)
	if err != nil {
		return err
	}
	return services.WriteStatus(cli.stdout(), st)
}

type ResetCmd struct {
	Identity string `arg:"" optional:"" help:"Client identity to reset."`
	All      bool   `help:"Reset every identity."`
}

func (c *ResetCmd) Validate() error {
	id := strings.TrimSpace(c.Identity)
	switch {
	case c.All && id != "":
		return fmt.Errorf("pass either an identity or --all, not both")
	case !c.All && id == "":
		return fmt.Errorf("identity is required for reset (or use --all)")
	}
	return nil
}

func (c *ResetCmd) Run(cli *CLI) error {
	ctx := context.Background()
	admin, closeFn, err := cli.openAdmin(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if c.All {
		removed, err := admin.ResetAll(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cli.stdout(), "Reset all quotas (%d counters removed)\n", removed)
		return err
	}

	if err := admin.Reset(ctx, c.Identity); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.stdout(), "Successfully reset quota for identity: %s\n", strings.TrimSpace(c.Identity))
	return err
}

func (cli *CLI) stdout() io.Writer {
	if cli.out != nil {
		return cli.out
	}
	return os.Stdout
}

// openAdmin fala com o servidor quando --server é informado; senão abre o
// mesmo store configurado para o servidor.
func (cli *CLI) openAdmin(ctx context.Context) (ports.QuotaAdmin, func(), error) {
	if cli.admin != nil {
		return cli.admin, func() {}, nil
	}
	if cli.Server != "" {
		if cli.Token == "" {
			return nil, nil, fmt.Errorf("--server needs --token (or ADMIN_TOKEN); the server disables admin routes without one")
		}
		return newRemoteAdmin(cli.Server, cli.Token), func() {}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.Type == storage.TypeMemory {
		return nil, nil, fmt.Errorf("memory storage lives inside the server process; use --server to reach it")
	}

	logger, err := logging.New(cli.LogLevel, "text", os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	admin, err := services.NewAdminService(store, services.Config{
		HourlyLimit: cfg.Quota.HourlyLimit,
		DailyLimit:  cfg.Quota.DailyLimit,
		Logger:      logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return admin, closeStore, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("quotactl"),
		kong.Description("Inspect and reset try-on quotas."),
		kong.UsageOnError(),
	)

	if lvl, err := logging.ParseLevel(cli.LogLevel); err == nil {
		slog.SetLogLoggerLevel(lvl)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
