package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/loxhome-core/internal/hass"
)

func (a *app) newToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <entity_id>",
		Short: "Toggle an entity",
		Long: `Toggle an entity with its domain's toggle service. Domains without one
use homeassistant.toggle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]
			if !strings.Contains(entityID, ".") {
				return fmt.Errorf("invalid entity id %q: want <domain>.<object_id>", entityID)
			}

			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			session.Toggle(ctx, entityID)
			successColor.Fprintf(cmd.OutOrStdout(), "%s.toggle → %s\n", hass.ToggleService(entityID), entityID) //nolint:errcheck // terminal output
			return nil
		},
	}
}

func (a *app) newCallCommand() *cobra.Command {
	var (
		entities []string
		data     string
	)

	cmd := &cobra.Command{
		Use:   "call <domain> <service>",
		Short: "Call a backend service",
		Example: `  loxctl call light turn_on --entity light.kitchen --data '{"brightness": 128}'
  loxctl call scene turn_on --entity scene.evening`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, service := args[0], args[1]

			var serviceData map[string]any
			if data != "" {
				if err := json.Unmarshal([]byte(data), &serviceData); err != nil {
					return fmt.Errorf("parsing --data: %w", err)
				}
			}

			var target *hass.Target
			if len(entities) > 0 {
				target = &hass.Target{EntityID: entities}
			}

			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			session.Call(ctx, domain, service, serviceData, target)
			successColor.Fprintf(cmd.OutOrStdout(), "%s.%s called\n", domain, service) //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&entities, "entity", nil, "Target entity id (repeatable or comma-separated)")
	cmd.Flags().StringVar(&data, "data", "", "Service data as a JSON object")
	return cmd
}
