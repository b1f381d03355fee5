package cli

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/loxhome-core/internal/hass"
)

func (a *app) newStatesCommand() *cobra.Command {
	var (
		domain string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "states [entity_id...]",
		Short: "List entity states",
		Long:  `List the live state of every entity, or of the given entity ids.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			states := filterStates(session.States(ctx), domain, args)
			for _, id := range args {
				if _, ok := states[id]; !ok {
					return fmt.Errorf("entity %s not found", id)
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), states)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tSTATE\tLAST CHANGED")
			for _, id := range sortedIDs(states) {
				s := states[id]
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, s.State, s.LastChanged)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "Only show entities of this domain (e.g. light)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// filterStates keeps entities of domain (if set) and in ids (if any).
func filterStates(states hass.States, domain string, ids []string) hass.States {
	out := make(hass.States, len(states))
	for id, s := range states {
		if domain != "" && hass.Domain(id) != domain {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		out[id] = s
	}
	return out
}

func sortedIDs(states hass.States) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
