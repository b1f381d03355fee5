package discovery

// Area is an entry of the backend area registry.
type Area struct {
	AreaID  string `json:"area_id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Device is an entry of the backend device registry.
type Device struct {
	ID         string `json:"id"`
	AreaID     string `json:"area_id,omitempty"`
	Name       string `json:"name,omitempty"`
	NameByUser string `json:"name_by_user,omitempty"`
}

// EntityRegistryEntry is an entry of the backend entity registry.
// DisabledBy and HiddenBy are nil or empty unless something disabled or hid
// the entity.
type EntityRegistryEntry struct {
	EntityID   string   `json:"entity_id"`
	DeviceID   string   `json:"device_id,omitempty"`
	AreaID     string   `json:"area_id,omitempty"`
	Platform   string   `json:"platform"`
	Name       string   `json:"name,omitempty"`
	DisabledBy *string  `json:"disabled_by,omitempty"`
	HiddenBy   *string  `json:"hidden_by,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

// AreaEntities is one area with the entities resolved into it.
type AreaEntities struct {
	Area     Area     `json:"area"`
	Entities []string `json:"entities"`
}

// Result is the dashboard structure derived from the registries.
//
// Every entity id appears in at most one area bucket, and in Unassigned
// exactly when it resolves to no area. Favorite and central membership is
// independent of area placement.
type Result struct {
	Areas            []AreaEntities `json:"areas"`
	Unassigned       []string       `json:"unassigned"`
	FavoriteEntities []string       `json:"favoriteEntities"`
	CentralEntities  []string       `json:"centralEntities"`
}
