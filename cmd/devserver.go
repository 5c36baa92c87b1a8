package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/config"
	"github.com/feedsync/internal/fakeserver"
	"github.com/feedsync/pkg/models"
)

// DevServerCommand returns the command that runs the in-memory backend
func DevServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "devserver",
		Usage: "Run an in-memory backend for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides devserver.addr",
			},
			&cli.StringSliceFlag{
				Name:  "user",
				Usage: "Print a session token for `ID[:NAME[:ROLE]]` at startup, repeatable",
			},
		},
		Action: runDevServer,
	}
}

func runDevServer(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DevServer.Secret == "" {
		return fmt.Errorf("devserver secret is required (devserver.secret or FEEDSYNC_DEVSERVER__SECRET)")
	}
	addr := cfg.DevServer.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	server, err := fakeserver.New(fakeserver.Options{Secret: []byte(cfg.DevServer.Secret)})
	if err != nil {
		return err
	}

	for _, spec := range c.StringSlice("user") {
		viewer, err := parseUser(spec)
		if err != nil {
			return err
		}
		token, err := server.IssueToken(viewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", viewer.ID, token)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// parseUser reads ID[:NAME[:ROLE]]
func parseUser(spec string) (models.Viewer, error) {
	parts := strings.SplitN(spec, ":", 3)
	if parts[0] == "" {
		return models.Viewer{}, fmt.Errorf("invalid user %q: id is required", spec)
	}
	viewer := models.Viewer{ID: parts[0]}
	if len(parts) > 1 {
		viewer.DisplayName = parts[1]
	}
	if len(parts) > 2 {
		viewer.Role = models.UserRole(parts[2])
	}
	viewer.Role = models.RoleFor(viewer)
	return viewer, nil
}
