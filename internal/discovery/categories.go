package discovery

import "strings"

// Category groups entity domains for the dashboard sidebar.
type Category struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Icon    string   `json:"icon" yaml:"icon"`
	Color   string   `json:"color" yaml:"color"`
	Domains []string `json:"domains" yaml:"domains"`
}

// CategoryEntities is one category with the entities that fall into it.
type CategoryEntities struct {
	Category Category `json:"category"`
	Entities []string `json:"entities"`
}

// DefaultCategories returns the built-in sidebar categories.
func DefaultCategories() []Category {
	return []Category{
		{ID: "lighting", Name: "Beleuchtung", Icon: "mdi:lightbulb", Color: "#f5c542", Domains: []string{"light"}},
		{ID: "climate", Name: "Klima", Icon: "mdi:thermometer", Color: "#42a5f5", Domains: []string{"climate", "fan"}},
		{ID: "shading", Name: "Beschattung", Icon: "mdi:window-shutter", Color: "#8d6e63", Domains: []string{"cover"}},
		{ID: "security", Name: "Sicherheit", Icon: "mdi:lock", Color: "#ef5350", Domains: []string{"alarm_control_panel", "lock", "binary_sensor"}},
		{ID: "media", Name: "Medien", Icon: "mdi:music", Color: "#ab47bc", Domains: []string{"media_player"}},
		{ID: "switches", Name: "Schalter", Icon: "mdi:flash", Color: "#66bb6a", Domains: []string{"switch", "input_boolean", "automation"}},
		{ID: "sensors", Name: "Sensoren", Icon: "mdi:chart-bar", Color: "#26c6da", Domains: []string{"sensor"}},
	}
}

// Categorize buckets entityIDs by domain into categories.
//
// Categories keep their given order and entities keep input order. An
// entity lands in the first category listing its domain; entities matching
// no category are dropped, as are empty categories.
func Categorize(entityIDs []string, categories []Category) []CategoryEntities {
	owner := make(map[string]int)
	for i, c := range categories {
		for _, d := range c.Domains {
			if _, taken := owner[d]; !taken {
				owner[d] = i
			}
		}
	}

	buckets := make([][]string, len(categories))
	for _, id := range entityIDs {
		i, ok := owner[domainOf(id)]
		if !ok {
			continue
		}
		buckets[i] = append(buckets[i], id)
	}

	out := make([]CategoryEntities, 0, len(categories))
	for i, c := range categories {
		if len(buckets[i]) == 0 {
			continue
		}
		out = append(out, CategoryEntities{Category: c, Entities: buckets[i]})
	}
	return out
}

// AllEntities flattens a Result into one list: area buckets in order, then
// unassigned entities.
func (r Result) AllEntities() []string {
	var ids []string
	for _, a := range r.Areas {
		ids = append(ids, a.Entities...)
	}
	return append(ids, r.Unassigned...)
}

func domainOf(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}
