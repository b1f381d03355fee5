package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/loxhome-core/internal/dashboard"
	"github.com/nerrad567/loxhome-core/internal/hass"
)

// Config file formats.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Export or import the dashboard config",
		Long: `Move the LoxHome dashboard config between the backend's per-user storage
and YAML or JSON files.`,
	}
	cmd.AddCommand(
		a.newConfigExportCommand(),
		a.newConfigImportCommand(),
		a.newConfigAddViewCommand(),
		a.newConfigAddTileCommand(),
	)
	return cmd
}

func (a *app) newConfigExportCommand() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored dashboard config to stdout or a file",
		Long: `Write the stored dashboard config. When the backend holds no config,
the default config is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := resolveFormat(format, output)
			if err != nil {
				return err
			}

			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			cfg, err := fetchConfig(ctx, session)
			if err != nil {
				return err
			}

			data, err := encodeConfig(cfg, kind)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			successColor.Fprintf(cmd.ErrOrStderr(), "exported %d views to %s\n", len(cfg.Views), output) //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: yaml or json (default from file extension, else yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func (a *app) newConfigImportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Validate a dashboard config file and store it on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			kind, err := resolveFormat(format, source)
			if err != nil {
				return err
			}

			var data []byte
			if source == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(source) // #nosec G304 -- path supplied by the operator
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}

			cfg, err := decodeConfig(data, kind)
			if err != nil {
				return err
			}

			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := session.SetUserData(ctx, dashboard.RemoteKey, cfg); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "imported %d views\n", len(cfg.Views)) //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Input format: yaml or json (default from file extension, else yaml)")
	return cmd
}

func (a *app) newConfigAddViewCommand() *cobra.Command {
	var icon, viewColor string

	cmd := &cobra.Command{
		Use:   "add-view <name>",
		Short: "Append an empty view to the stored dashboard config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			cfg, err := fetchConfig(ctx, session)
			if err != nil {
				return err
			}
			cfg, view := dashboard.AddView(cfg, args[0], icon, viewColor)
			if err := session.SetUserData(ctx, dashboard.RemoteKey, cfg); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "added view %s (%s)\n", view.Name, view.ID) //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.Flags().StringVar(&icon, "icon", "mdi:home", "View icon")
	cmd.Flags().StringVar(&viewColor, "color", "#69b34c", "View accent color")
	return cmd
}

func (a *app) newConfigAddTileCommand() *cobra.Command {
	var size string

	cmd := &cobra.Command{
		Use:   "add-tile <view_id> <entity_id>",
		Short: "Add a tile for an entity to a view of the stored dashboard config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, session, done, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			cfg, err := fetchConfig(ctx, session)
			if err != nil {
				return err
			}
			cfg, tile, err := dashboard.AddTile(cfg, args[0], args[1], size)
			if err != nil {
				return err
			}
			if err := session.SetUserData(ctx, dashboard.RemoteKey, cfg); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "added %s tile for %s to %s\n", tile.Type, tile.EntityID, args[0]) //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.Flags().StringVar(&size, "size", "", "Tile size: 1x1, 2x1, 1x2 or 2x2 (default 1x1)")
	return cmd
}

// fetchConfig reads the stored config, falling back to the default when the
// backend has none.
func fetchConfig(ctx context.Context, session Session) (dashboard.Config, error) {
	raw, err := session.GetUserData(ctx, dashboard.RemoteKey)
	if errors.Is(err, hass.ErrNoValue) {
		return dashboard.Default(), nil
	}
	if err != nil {
		return dashboard.Config{}, err
	}
	return dashboard.DecodeJSON(raw)
}

// resolveFormat picks an explicit format, else one implied by path.
func resolveFormat(explicit, path string) (string, error) {
	switch strings.ToLower(explicit) {
	case formatYAML, "yml":
		return formatYAML, nil
	case formatJSON:
		return formatJSON, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q: want yaml or json", explicit)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return formatJSON, nil
	}
	return formatYAML, nil
}

func encodeConfig(cfg dashboard.Config, format string) ([]byte, error) {
	if format == formatJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding config as json: %w", err)
		}
		return append(data, '\n'), nil
	}
	return dashboard.MarshalYAML(cfg)
}

func decodeConfig(data []byte, format string) (dashboard.Config, error) {
	if format == formatJSON {
		return dashboard.ParseJSON(data)
	}
	return dashboard.ParseYAML(data)
}
