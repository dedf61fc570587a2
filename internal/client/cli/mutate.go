package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iudanet/adminsync/internal/client/mutation"
	"github.com/iudanet/adminsync/internal/models"
)

// mutationFlags общие флаги create и update
type mutationFlags struct {
	data string
	set  []string
}

func (f *mutationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "attribute assignment key=value (repeatable; JSON values are decoded)")
	cmd.Flags().StringVar(&f.data, "data", "", "attributes as a JSON object")
}

func (f *mutationFlags) attributes() (map[string]any, error) {
	attrs, err := parseAssignments(f.set)
	if err != nil {
		return nil, commandError("invalid attributes", err)
	}
	attrs, err = mergeData(f.data, attrs)
	if err != nil {
		return nil, commandError("invalid attributes", err)
	}
	return attrs, nil
}

func (c *Cli) newCreateCommand() *cobra.Command {
	var (
		flags mutationFlags
		id    string
	)

	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create a record and broadcast it to other admins",
		Example: `  adminsync create products --set name=Widget --set price=12.5 --set sortOrder=3
  adminsync create jobs --data '{"title":"Backend engineer","remote":true}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := flags.attributes()
			if err != nil {
				return err
			}
			return c.runMutation(cmd.Context(), args[0], models.ActionCreate, models.Payload{ID: id, Attributes: attrs})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "record id (generated when empty)")

	return cmd
}

func (c *Cli) newUpdateCommand() *cobra.Command {
	var flags mutationFlags

	cmd := &cobra.Command{
		Use:     "update <type> <id>",
		Short:   "Patch record attributes (null removes a key)",
		Example: `  adminsync update orders 42 --set status=shipped --set note=null`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := flags.attributes()
			if err != nil {
				return err
			}
			if len(attrs) == 0 {
				return commandError("nothing to update, use --set or --data", nil)
			}
			return c.runMutation(cmd.Context(), args[0], models.ActionUpdate, models.Payload{ID: args[1], Attributes: attrs})
		},
	}
	flags.bind(cmd)

	return cmd
}

func (c *Cli) newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMutation(cmd.Context(), args[0], models.ActionDelete, models.Payload{ID: args[1]})
		},
	}
}

func (c *Cli) runMutation(ctx context.Context, typeName string, action models.Action, payload models.Payload) error {
	t, err := c.entityType(typeName)
	if err != nil {
		return err
	}

	s, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer c.closeSession(s)

	// Ждем входа в комнату, чтобы изменение дошло до других администраторов.
	// Без комнаты запись все равно выполняется, рассылка пропускается.
	joinCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	if err := s.WaitJoined(joinCtx); err != nil {
		c.logger.Warn("Not joined to room, change will not be broadcast", "room", c.cfg.Room, "error", err)
	}
	cancel()

	rec, err := s.Mutate(ctx, t, action, payload)
	if err != nil {
		var me *mutation.MutationError
		if errors.As(err, &me) && (errors.Is(err, mutation.ErrMissingID) || errors.Is(err, mutation.ErrUnknownEntityType)) {
			return commandError("invalid mutation", err)
		}
		return err
	}

	if rec == nil {
		if c.format == "json" {
			return writeJSON(c.io, map[string]any{"deleted": payload.ID, "type": t})
		}
		c.io.Printf("✓ Deleted %s/%s\n", t, payload.ID)
		return nil
	}

	return writeRecord(c.io, c.format, rec)
}
