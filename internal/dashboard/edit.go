package dashboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/loxhome-core/internal/discovery"
)

var (
	// ErrViewNotFound is returned when an edit names a view that does not exist.
	ErrViewNotFound = errors.New("dashboard: view not found")

	// ErrUnsupportedEntity is returned for entities the dashboard cannot render.
	ErrUnsupportedEntity = errors.New("dashboard: unsupported entity")
)

// AddView returns a copy of cfg with an empty view appended after the
// existing ones, and the new view.
func AddView(cfg Config, name, icon, color string) (Config, ViewConfig) {
	out := cfg.Clone().normalize()
	v := ViewConfig{
		ID:    NewID(),
		Name:  name,
		Icon:  icon,
		Color: color,
		Tiles: []TileConfig{},
		Order: len(out.Views),
	}
	out.Views = append(out.Views, v)
	return out, v
}

// AddTile returns a copy of cfg with a tile for entityID appended to the
// view viewID, and the new tile. The tile type follows the entity domain;
// an empty size means 1x1.
func AddTile(cfg Config, viewID, entityID, size string) (Config, TileConfig, error) {
	domain, _, ok := strings.Cut(entityID, ".")
	if !ok || !discovery.IsSupportedDomain(domain) {
		return cfg, TileConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedEntity, entityID)
	}
	switch size {
	case "":
		size = Size1x1
	case Size1x1, Size2x1, Size1x2, Size2x2:
	default:
		return cfg, TileConfig{}, fmt.Errorf("%w: tile size %q", ErrInvalidConfig, size)
	}

	out := cfg.Clone().normalize()
	i := out.viewIndex(viewID)
	if i < 0 {
		return cfg, TileConfig{}, fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
	}

	tile := TileConfig{
		ID:       NewID(),
		Type:     tileType(domain),
		EntityID: entityID,
		Size:     size,
		Order:    len(out.Views[i].Tiles),
	}
	out.Views[i].Tiles = append(out.Views[i].Tiles, tile)
	return out, tile, nil
}

func tileType(domain string) string {
	switch domain {
	case "light":
		return TileLight
	case "switch", "input_boolean", "automation":
		return TileSwitch
	case "climate":
		return TileClimate
	case "cover":
		return TileCover
	case "sensor":
		return TileSensor
	case "media_player":
		return TileMedia
	case "camera":
		return TileCamera
	default:
		return TileGeneric
	}
}
