package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/adminsync/internal/models"
)

func (c *Cli) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <type>",
		Short: "Show the current records of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.entityType(args[0])
			if err != nil {
				return err
			}

			s, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer c.closeSession(s)

			return writeRecords(c.io, c.format, t, s.Snapshot(t))
		},
	}
}

// entityType проверяет, что тип известен реестру
func (c *Cli) entityType(name string) (models.EntityType, error) {
	t := models.EntityType(name)
	if !c.registry.Has(t) {
		return "", commandError(fmt.Sprintf("unknown entity type %q, see 'adminsync types'", name), nil)
	}
	return t, nil
}
