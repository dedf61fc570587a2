package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/iudanet/adminsync/internal/client/api"
)

func (c *Cli) newLoginCommand() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to the admin server",
		Long: `Login to the admin server and store the session locally.

Password sources (highest priority first):
  1. ADMINSYNC_PASSWORD environment variable
  2. Interactive prompt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLogin(cmd, username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username (prompted when empty)")

	return cmd
}

func (c *Cli) runLogin(cmd *cobra.Command, username string) error {
	var err error
	if username == "" {
		username, err = c.io.ReadInput("Username: ")
		if err != nil {
			return commandError("failed to read username", err)
		}
	}

	password := c.cfg.Password
	if password == "" {
		password, err = c.io.ReadPassword("Password: ")
		if err != nil {
			return commandError("failed to read password", err)
		}
	}

	session, err := c.authService.Login(cmd.Context(), username, password)
	if err != nil {
		var se *apiclient.StorageError
		if errors.As(err, &se) && se.StatusCode != 0 && !se.Retryable() {
			return commandError("login rejected", err)
		}
		return err
	}

	if c.format == "json" {
		return writeJSON(c.io, map[string]any{
			"username":  session.Username,
			"server":    session.ServerURL,
			"expiresAt": session.ExpiresAt,
		})
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", session.Username)
	c.io.Printf("Server:   %s\n", session.ServerURL)
	if !session.ExpiresAt.IsZero() {
		c.io.Printf("Expires:  %s\n", session.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (c *Cli) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.authService.Logout(cmd.Context()); err != nil {
				return err
			}
			if c.format == "json" {
				return writeJSON(c.io, map[string]any{"loggedOut": true})
			}
			c.io.Println("✓ Logged out")
			return nil
		},
	}
}

// statusInfo данные команды status
type statusInfo struct {
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastResync *time.Time `json:"lastResync,omitempty"`
	Username   string     `json:"username,omitempty"`
	Server     string     `json:"server"`
	Room       string     `json:"room"`
	ClientID   string     `json:"clientId"`
	Status     string     `json:"status"`
}

func (c *Cli) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login status and device information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus(cmd)
		},
	}
}

func (c *Cli) runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()

	clientID, err := c.storage.ClientID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client id: %w", err)
	}

	info := statusInfo{Server: c.cfg.Server, Room: c.cfg.Room, ClientID: clientID, Status: "authenticated"}

	current, err := c.authService.Current(ctx)
	switch {
	case err == nil:
	case current != nil:
		// Сессия есть, но непригодна (истекла или от другого сервера)
		info.Status = "expired"
	default:
		info.Status = "not authenticated"
	}
	if current != nil {
		info.Username = current.Username
		if !current.ExpiresAt.IsZero() {
			info.ExpiresAt = &current.ExpiresAt
		}
	}

	if last, err := c.storage.GetLastResync(ctx); err == nil && !last.IsZero() {
		info.LastResync = &last
	}

	if c.format == "json" {
		return writeJSON(c.io, info)
	}

	c.io.Printf("Status:      %s\n", info.Status)
	if info.Username != "" {
		c.io.Printf("Username:    %s\n", info.Username)
	}
	c.io.Printf("Server:      %s\n", info.Server)
	c.io.Printf("Room:        %s\n", info.Room)
	c.io.Printf("Client ID:   %s\n", info.ClientID)
	if info.ExpiresAt != nil {
		c.io.Printf("Expires:     %s\n", info.ExpiresAt.Format(time.RFC3339))
	}
	if info.LastResync != nil {
		c.io.Printf("Last resync: %s\n", info.LastResync.Format(time.RFC3339))
	}
	if info.Status != "authenticated" {
		c.io.Println()
		c.io.Println("Run 'adminsync login' to authenticate.")
	}
	return nil
}

func (c *Cli) newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List known entity types and their ordering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type typeInfo struct {
				Name      string `json:"name"`
				Ordering  string `json:"ordering"`
				SortField string `json:"sortField,omitempty"`
			}

			types := make([]typeInfo, 0, len(c.registry.Types()))
			for _, t := range c.registry.Types() {
				spec, _ := c.registry.Lookup(t)
				types = append(types, typeInfo{Name: string(spec.Name), Ordering: string(spec.Ordering), SortField: spec.SortField})
			}

			if c.format == "json" {
				return writeJSON(c.io, types)
			}
			for _, t := range types {
				if t.SortField != "" {
					c.io.Printf("%-16s %s (%s)\n", t.Name, t.Ordering, t.SortField)
					continue
				}
				c.io.Printf("%-16s %s\n", t.Name, t.Ordering)
			}
			return nil
		},
	}
}
