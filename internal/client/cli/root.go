// Package cli команды консоли администратора
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/adminsync/internal/client/api"
	"github.com/iudanet/adminsync/internal/client/auth"
	"github.com/iudanet/adminsync/internal/client/config"
	"github.com/iudanet/adminsync/internal/client/iocli"
	"github.com/iudanet/adminsync/internal/client/notify"
	"github.com/iudanet/adminsync/internal/client/session"
	"github.com/iudanet/adminsync/internal/client/storage/boltdb"
	"github.com/iudanet/adminsync/internal/registry"
)

// Cli общее состояние команд. Заполняется в PersistentPreRunE корневой команды.
type Cli struct {
	cfg         *config.Config
	io          iocli.IO
	logger      *slog.Logger
	storage     *boltdb.Storage
	apiClient   *api.Client
	authService *auth.Service
	registry    *registry.Registry
	display     notify.Display
	version     string
	format      string
}

// NewRootCommand создает корневую команду adminsync
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	c := &Cli{cfg: cfg, version: version}

	cmd := &cobra.Command{
		Use:     "adminsync",
		Short:   "Admin console with real-time collection sync",
		Long:    "Admin console client: keeps entity collections in sync with the server and other admins in real time.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&c.format, "format", "text", "output format (text|json)")
	cfg.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		c.newLoginCommand(),
		c.newLogoutCommand(),
		c.newStatusCommand(),
		c.newTypesCommand(),
		c.newListCommand(),
		c.newCreateCommand(),
		c.newUpdateCommand(),
		c.newDeleteCommand(),
		c.newWatchCommand(),
	)
	for _, sub := range cmd.Commands() {
		c.closeAfter(sub)
	}

	return cmd
}

// closeAfter закрывает локальную базу после команды. PersistentPostRunE
// cobra не вызывает, если команда завершилась ошибкой.
func (c *Cli) closeAfter(cmd *cobra.Command) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := c.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

func (c *Cli) init(cmd *cobra.Command) error {
	if !isValidFormat(c.format) {
		return commandError(fmt.Sprintf("invalid format %q: must be one of %v", c.format, ValidFormats), nil)
	}
	if err := c.cfg.Validate(); err != nil {
		return commandError("invalid configuration", err)
	}

	level, _ := config.ParseLevel(c.cfg.LogLevel)
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	c.io = iocli.New(cmd.InOrStdin(), cmd.OutOrStdout())

	if c.display == nil {
		if f, ok := cmd.OutOrStdout().(*os.File); ok {
			c.display = notify.NewTerminalDisplay(f)
		} else {
			c.display = notify.NewWriterDisplay(cmd.OutOrStdout())
		}
	}

	reg := registry.Default()
	if c.cfg.TypesFile != "" {
		loaded, err := registry.Load(c.cfg.TypesFile)
		if err != nil {
			return commandError("failed to load entity types", err)
		}
		reg = loaded
	}
	c.registry = reg

	store, err := boltdb.New(cmd.Context(), c.cfg.DBPath)
	if err != nil {
		return commandError("failed to open local database", err)
	}
	c.storage = store

	c.apiClient = api.NewClientWithTimeout(c.cfg.Server, c.cfg.RequestTimeout)
	c.authService = auth.NewService(c.apiClient, c.storage, c.cfg.Server, c.logger)

	return nil
}

func (c *Cli) close() error {
	if c.storage == nil {
		return nil
	}
	err := c.storage.Close()
	c.storage = nil
	return err
}

// openSession создает и запускает сессию синхронизации для текущего входа
func (c *Cli) openSession(ctx context.Context) (*session.Session, error) {
	current, err := c.authService.Current(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) || errors.Is(err, auth.ErrSessionExpired) {
			return nil, commandError("run 'adminsync login' first", err)
		}
		return nil, err
	}

	clientID, err := c.storage.ClientID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client id: %w", err)
	}

	hubURL, err := c.apiClient.WebsocketURL()
	if err != nil {
		return nil, commandError("invalid server URL", err)
	}

	s, err := session.New(session.Config{
		HubURL:         hubURL,
		Room:           c.cfg.Room,
		Token:          current.AccessToken,
		ClientID:       clientID,
		ResyncInterval: c.cfg.ResyncInterval,
		RequestTimeout: c.cfg.RequestTimeout,
		JoinTimeout:    c.cfg.JoinTimeout,
		BackoffMin:     c.cfg.BackoffMin,
		BackoffMax:     c.cfg.BackoffMax,
		StableAfter:    c.cfg.StableAfter,
	}, session.Deps{
		Registry: c.registry,
		Remote:   c.apiClient.WithToken(current.AccessToken),
		Display:  c.display,
		Metadata: c.storage,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Start(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}

	return s, nil
}

// closeSession закрывает сессию, давая незавершенным мутациям время завершиться
func (c *Cli) closeSession(s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout+time.Second)
	defer cancel()

	if err := s.Close(ctx); err != nil {
		c.logger.Warn("Session closed with pending mutations", "error", err)
	}
}
