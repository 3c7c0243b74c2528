package query

import "testing"

func TestGetPath(t *testing.T) {
	doc := map[string]any{
		"name": "ada",
		"address": map[string]any{
			"city": "london",
		},
	}

	tests := []struct {
		name      string
		path      string
		wantVal   any
		wantFound bool
	}{
		{"top level", "name", "ada", true},
		{"nested", "address.city", "london", true},
		{"missing top level", "age", nil, false},
		{"missing nested", "address.zip", nil, false},
		{"non-object intermediate", "name.first", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := GetPath(doc, tt.path)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.wantVal {
				t.Errorf("value = %v, want %v", got, tt.wantVal)
			}
		})
	}
}

func TestSetPath(t *testing.T) {
	doc := map[string]any{}
	SetPath(doc, "address.city", "paris")

	got, found := GetPath(doc, "address.city")
	if !found || got != "paris" {
		t.Fatalf("GetPath after SetPath = %v, %v, want paris, true", got, found)
	}
}

func TestSetPathOverwritesNonObjectIntermediate(t *testing.T) {
	doc := map[string]any{"address": "flat string"}
	SetPath(doc, "address.city", "paris")

	got, found := GetPath(doc, "address.city")
	if !found || got != "paris" {
		t.Fatalf("SetPath did not overwrite non-object intermediate: %v, %v", got, found)
	}
}

func TestUnsetPath(t *testing.T) {
	doc := map[string]any{"address": map[string]any{"city": "paris", "zip": "75000"}}
	UnsetPath(doc, "address.city")

	if _, found := GetPath(doc, "address.city"); found {
		t.Error("address.city should be unset")
	}
	if _, found := GetPath(doc, "address.zip"); !found {
		t.Error("address.zip should survive unrelated unset")
	}
}

func TestUnsetPathMissingIsNoop(t *testing.T) {
	doc := map[string]any{"a": 1}
	UnsetPath(doc, "b.c")
	if len(doc) != 1 {
		t.Errorf("unexpected mutation: %v", doc)
	}
}
