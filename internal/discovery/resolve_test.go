package discovery

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestResolve_PartitionsRegistry(t *testing.T) {
	areas := []Area{
		{AreaID: "kitchen", Name: "Küche"},
		{AreaID: "living", Name: "Wohnzimmer"},
		{AreaID: "garage", Name: "Garage"},
	}
	devices := []Device{
		{ID: "d1", AreaID: "living"},
		{ID: "d2"},
	}
	entities := []EntityRegistryEntry{
		{EntityID: "light.a", AreaID: "kitchen", Platform: "hue"},
		{EntityID: "light.b", DeviceID: "d1", Platform: "hue"},
		{EntityID: "switch.c", Platform: "shelly", Labels: []string{"Favorit"}},
		{EntityID: "sensor.d", Platform: "x", HiddenBy: strPtr("user")},
		{EntityID: "update.e", AreaID: "kitchen", Platform: "x"},
		{EntityID: "light.f", DeviceID: "d2", Platform: "hue"},
	}

	got := Resolve(areas, devices, entities)

	want := Result{
		Areas: []AreaEntities{
			{Area: areas[0], Entities: []string{"light.a"}},
			{Area: areas[1], Entities: []string{"light.b"}},
		},
		Unassigned:       []string{"switch.c", "light.f"},
		FavoriteEntities: []string{"switch.c"},
		CentralEntities:  []string{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestResolve_EntityAreaOverridesDeviceArea(t *testing.T) {
	areas := []Area{{AreaID: "kitchen"}, {AreaID: "bath"}}
	devices := []Device{{ID: "d1", AreaID: "kitchen"}}
	entities := []EntityRegistryEntry{
		{EntityID: "light.x", DeviceID: "d1", AreaID: "bath"},
	}

	got := Resolve(areas, devices, entities)

	if len(got.Areas) != 1 || got.Areas[0].Area.AreaID != "bath" {
		t.Fatalf("Areas = %+v, want only bath", got.Areas)
	}
	if !reflect.DeepEqual(got.Areas[0].Entities, []string{"light.x"}) {
		t.Errorf("bath entities = %v, want [light.x]", got.Areas[0].Entities)
	}
}

func TestResolve_LabelsAreCaseInsensitive(t *testing.T) {
	entities := []EntityRegistryEntry{
		{EntityID: "light.k", Labels: []string{"FAVORIT"}},
		{EntityID: "light.l", Labels: []string{"Zentral", "favorit"}},
		{EntityID: "light.m", Labels: []string{"favorite"}},
	}

	got := Resolve(nil, nil, entities)

	if want := []string{"light.k", "light.l"}; !reflect.DeepEqual(got.FavoriteEntities, want) {
		t.Errorf("FavoriteEntities = %v, want %v", got.FavoriteEntities, want)
	}
	if want := []string{"light.l"}; !reflect.DeepEqual(got.CentralEntities, want) {
		t.Errorf("CentralEntities = %v, want %v", got.CentralEntities, want)
	}
}

func TestResolve_SkipsDisabledAndUnsupported(t *testing.T) {
	entities := []EntityRegistryEntry{
		{EntityID: "light.off", DisabledBy: strPtr("integration")},
		{EntityID: "switch.hidden", HiddenBy: strPtr("user")},
		{EntityID: "light.blank", DisabledBy: strPtr(""), HiddenBy: strPtr("")},
		{EntityID: "binary_sensor.door"},
		{EntityID: "weather.home"},
		{EntityID: "camera.front"},
	}

	got := Resolve(nil, nil, entities)

	if want := []string{"light.blank", "camera.front"}; !reflect.DeepEqual(got.Unassigned, want) {
		t.Errorf("Unassigned = %v, want %v", got.Unassigned, want)
	}
}

func TestResolve_AreaOrderFollowsSnapshot(t *testing.T) {
	areas := []Area{{AreaID: "z"}, {AreaID: "a"}, {AreaID: "m"}}
	entities := []EntityRegistryEntry{
		{EntityID: "light.1", AreaID: "m"},
		{EntityID: "light.2", AreaID: "z"},
		{EntityID: "light.3", AreaID: "m"},
	}

	got := Resolve(areas, nil, entities)

	var order []string
	for _, a := range got.Areas {
		order = append(order, a.Area.AreaID)
	}
	if want := []string{"z", "m"}; !reflect.DeepEqual(order, want) {
		t.Errorf("area order = %v, want %v", order, want)
	}
	if want := []string{"light.1", "light.3"}; !reflect.DeepEqual(got.Areas[1].Entities, want) {
		t.Errorf("m entities = %v, want %v", got.Areas[1].Entities, want)
	}
}

func TestResolve_UnknownAreaIsUnassigned(t *testing.T) {
	entities := []EntityRegistryEntry{{EntityID: "light.x", AreaID: "deleted_area"}}

	got := Resolve([]Area{{AreaID: "kitchen"}}, nil, entities)

	if len(got.Areas) != 0 {
		t.Errorf("Areas = %+v, want none", got.Areas)
	}
	if want := []string{"light.x"}; !reflect.DeepEqual(got.Unassigned, want) {
		t.Errorf("Unassigned = %v, want %v", got.Unassigned, want)
	}
}

func TestResolve_EntityInAtMostOneBucket(t *testing.T) {
	areas := []Area{{AreaID: "a"}, {AreaID: "b"}}
	devices := []Device{{ID: "d", AreaID: "b"}}
	entities := []EntityRegistryEntry{
		{EntityID: "light.1", AreaID: "a", DeviceID: "d"},
		{EntityID: "light.2", DeviceID: "d"},
		{EntityID: "light.3"},
	}

	got := Resolve(areas, devices, entities)

	seen := map[string]int{}
	for _, id := range got.AllEntities() {
		seen[id]++
	}
	for _, id := range []string{"light.1", "light.2", "light.3"} {
		if seen[id] != 1 {
			t.Errorf("%s placed %d times, want 1", id, seen[id])
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	got := Resolve(nil, nil, nil)

	if got.Areas == nil || got.Unassigned == nil || got.FavoriteEntities == nil || got.CentralEntities == nil {
		t.Errorf("Resolve() on empty input has nil slices: %+v", got)
	}
}

func TestCategorize(t *testing.T) {
	ids := []string{"sensor.t", "light.a", "fan.f", "climate.c", "weather.home", "light.b", "binary_sensor.door"}

	got := Categorize(ids, DefaultCategories())

	type bucket struct {
		id       string
		entities []string
	}
	var flat []bucket
	for _, c := range got {
		flat = append(flat, bucket{c.Category.ID, c.Entities})
	}
	want := []bucket{
		{"lighting", []string{"light.a", "light.b"}},
		{"climate", []string{"fan.f", "climate.c"}},
		{"security", []string{"binary_sensor.door"}},
		{"sensors", []string{"sensor.t"}},
	}
	if !reflect.DeepEqual(flat, want) {
		t.Errorf("Categorize() = %+v, want %+v", flat, want)
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	if len(cats) != 7 {
		t.Fatalf("len(DefaultCategories()) = %d, want 7", len(cats))
	}
	if cats[0].Name != "Beleuchtung" || cats[6].Name != "Sensoren" {
		t.Errorf("unexpected category order: first %q last %q", cats[0].Name, cats[6].Name)
	}

	// Callers may modify the returned slice without affecting later calls.
	cats[0].Name = "changed"
	if DefaultCategories()[0].Name != "Beleuchtung" {
		t.Error("DefaultCategories() returned shared data")
	}
}
