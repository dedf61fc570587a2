package cli

import (
	"context"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/adminsync/internal/client/reconcile"
	"github.com/iudanet/adminsync/internal/models"
)

func (c *Cli) newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [types...]",
		Short: "Stream collection changes and notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []models.EntityType
			for _, name := range args {
				t, err := c.entityType(name)
				if err != nil {
					return err
				}
				filter = append(filter, t)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.runWatch(ctx, filter)
		},
	}
}

// watchEvent строка потока watch
type watchEvent struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"` // state | change
	State   string    `json:"state,omitempty"`
	Type    string    `json:"type,omitempty"`
	ID      string    `json:"id,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Source  string    `json:"source,omitempty"`
}

func (c *Cli) runWatch(ctx context.Context, filter []models.EntityType) error {
	events := make(chan watchEvent, 64)

	s, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer c.closeSession(s)

	s.OnChange(func(ch reconcile.Change) {
		if len(filter) > 0 && !slices.Contains(filter, ch.Type) {
			return
		}
		ev := watchEvent{
			At:      time.Now(),
			Kind:    "change",
			Type:    string(ch.Type),
			ID:      ch.ID,
			Outcome: ch.Outcome.String(),
			Source:  ch.Source.String(),
		}
		select {
		case events <- ev:
		default:
			c.logger.Debug("Watch output is slow, change dropped", "type", ch.Type, "id", ch.ID)
		}
	})

	states := s.States()
	c.printWatch(watchEvent{At: time.Now(), Kind: "state", State: s.State().String()})

	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			c.printWatch(watchEvent{At: time.Now(), Kind: "state", State: state.String()})
		case ev := <-events:
			c.printWatch(ev)
		}
	}
}

func (c *Cli) printWatch(ev watchEvent) {
	if c.format == "json" {
		_ = writeJSON(c.io, ev)
		return
	}

	ts := ev.At.Format("15:04:05")
	switch ev.Kind {
	case "state":
		c.io.Printf("[%s] connection %s\n", ts, ev.State)
	default:
		c.io.Printf("[%s] %s %s %s (%s)\n", ts, ev.Type, ev.ID, ev.Outcome, ev.Source)
	}
}

