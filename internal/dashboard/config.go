package dashboard

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidConfig is returned when a decoded config fails validation.
var ErrInvalidConfig = errors.New("dashboard: invalid config")

// Tile types.
const (
	TileLight   = "light"
	TileSwitch  = "switch"
	TileClimate = "climate"
	TileCover   = "cover"
	TileSensor  = "sensor"
	TileMedia   = "media"
	TileCamera  = "camera"
	TileGeneric = "generic"
)

// Tile sizes, in grid cells (columns x rows).
const (
	Size1x1 = "1x1"
	Size2x1 = "2x1"
	Size1x2 = "1x2"
	Size2x2 = "2x2"
)

// Config is the whole dashboard layout. It is stored as one JSON document
// shared with the browser frontend, hence the camelCase field names.
type Config struct {
	Version  int          `json:"version" yaml:"version"`
	Title    string       `json:"title" yaml:"title"`
	Views    []ViewConfig `json:"views" yaml:"views"`
	Settings Settings     `json:"settings" yaml:"settings"`
}

// ViewConfig is one page of tiles, usually a room. Views are kept in the
// order given; Order is a display hint the frontend may sort by.
type ViewConfig struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Icon       string       `json:"icon" yaml:"icon"`
	Color      string       `json:"color" yaml:"color"`
	Tiles      []TileConfig `json:"tiles" yaml:"tiles"`
	Order      int          `json:"order" yaml:"order"`
	IsFavorite bool         `json:"isFavorite,omitempty" yaml:"isFavorite,omitempty"`
}

// TileConfig places one entity on a view.
type TileConfig struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	EntityID string `json:"entityId" yaml:"entityId"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Icon     string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Size     string `json:"size" yaml:"size"`
	Order    int    `json:"order" yaml:"order"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty"`
	Dimmable *bool  `json:"dimmable,omitempty" yaml:"dimmable,omitempty"`
}

// Settings are dashboard-wide display options.
type Settings struct {
	WeatherEntityID  string `json:"weatherEntityId" yaml:"weatherEntityId"`
	ShowHeader       bool   `json:"showHeader" yaml:"showHeader"`
	ShowSidebar      bool   `json:"showSidebar" yaml:"showSidebar"`
	SidebarCollapsed bool   `json:"sidebarCollapsed" yaml:"sidebarCollapsed"`
	Columns          int    `json:"columns" yaml:"columns"`
	CentralViewID    string `json:"centralViewId,omitempty" yaml:"centralViewId,omitempty"`
	BrandTitle       string `json:"brandTitle,omitempty" yaml:"brandTitle,omitempty"`
}

// Default returns the built-in config used when nothing is stored.
func Default() Config {
	return Config{
		Version: 1,
		Title:   "Mein Zuhause",
		Views: []ViewConfig{
			{
				ID:    "home",
				Name:  "Zuhause",
				Icon:  "mdi:home",
				Color: "#69b34c",
				Tiles: []TileConfig{},
				Order: 0,
			},
		},
		Settings: Settings{
			WeatherEntityID:  "weather.home",
			ShowHeader:       true,
			ShowSidebar:      true,
			SidebarCollapsed: false,
			Columns:          4,
			CentralViewID:    "",
			BrandTitle:       "LoxHome",
		},
	}
}

// Validate checks the invariants a stored config must hold to be used.
func (c Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("%w: version %d", ErrInvalidConfig, c.Version)
	}
	if c.Settings.Columns < 0 {
		return fmt.Errorf("%w: negative column count", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Views))
	for i, v := range c.Views {
		if v.ID == "" {
			return fmt.Errorf("%w: view %d has no id", ErrInvalidConfig, i)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: duplicate view id %q", ErrInvalidConfig, v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

// normalize replaces nil slices with empty ones so the encoded document
// always has arrays where the frontend expects them.
func (c Config) normalize() Config {
	if c.Views == nil {
		c.Views = []ViewConfig{}
	}
	for i := range c.Views {
		if c.Views[i].Tiles == nil {
			c.Views[i].Tiles = []TileConfig{}
		}
	}
	return c
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.Views != nil {
		out.Views = make([]ViewConfig, len(c.Views))
		for i, v := range c.Views {
			out.Views[i] = v
			if v.Tiles != nil {
				out.Views[i].Tiles = make([]TileConfig, len(v.Tiles))
				for j, t := range v.Tiles {
					if t.Dimmable != nil {
						d := *t.Dimmable
						t.Dimmable = &d
					}
					out.Views[i].Tiles[j] = t
				}
			}
		}
	}
	return out
}

// viewIndex returns the position of the view with the given id, or -1.
func (c Config) viewIndex(id string) int {
	for i, v := range c.Views {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// NewID returns a fresh identifier for a view or tile.
func NewID() string {
	return uuid.NewString()
}
