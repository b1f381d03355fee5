package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/loxhome-core/internal/discovery"
)

func (a *app) newDiscoverCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Resolve areas and entities from the backend registries",
		Long: `Fetch the area, device and entity registries and print the dashboard
structure: entities per area grouped by category, unassigned entities,
favorites and central entities.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			result, err := session.Discover(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printDiscovery(cmd.OutOrStdout(), result, discovery.DefaultCategories())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func printDiscovery(w io.Writer, result discovery.Result, categories []discovery.Category) {
	for _, area := range result.Areas {
		headerColor.Fprintf(w, "%s", area.Area.Name) //nolint:errcheck // terminal output
		dimColor.Fprintf(w, " (%s)\n", area.Area.AreaID) //nolint:errcheck // terminal output
		printCategorized(w, area.Entities, categories)
	}

	printSection(w, "Unassigned", result.Unassigned, categories)
	printSection(w, "Favorites", result.FavoriteEntities, categories)
	printSection(w, "Central", result.CentralEntities, categories)

	fmt.Fprintf(w, "\n%d areas, %d entities\n", len(result.Areas), len(result.AllEntities()))
}

func printSection(w io.Writer, title string, entities []string, categories []discovery.Category) {
	if len(entities) == 0 {
		return
	}
	headerColor.Fprintln(w, title) //nolint:errcheck // terminal output
	printCategorized(w, entities, categories)
}

func printCategorized(w io.Writer, entities []string, categories []discovery.Category) {
	for _, group := range discovery.Categorize(entities, categories) {
		fmt.Fprintf(w, "  %s: %s\n", nameColor.Sprint(group.Category.Name), strings.Join(group.Entities, ", "))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
