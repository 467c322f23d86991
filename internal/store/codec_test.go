package store_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regro/regolith/internal/store"
)

func Test_DecodeCollection_Attaches_IDs_When_File_Is_Id_Mapping(t *testing.T) {
	t.Parallel()

	data := []byte(`alice:
  name: Alice
  age: 30
  groups: [a, b]
bob:
`)

	got, err := store.DecodeCollection(data, store.FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := store.Collection{
		"alice": {"_id": "alice", "name": "Alice", "age": 30, "groups": []any{"a", "b"}},
		"bob":   {"_id": "bob"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func Test_DecodeCollection_Keeps_Integers_When_File_Is_JSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{"alice": {"age": 30, "height": 1.5}}`)

	got, err := store.DecodeCollection(data, store.FormatJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := store.Collection{
		"alice": {"_id": "alice", "age": 30, "height": 1.5},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func Test_DecodeCollection_Accepts_Document_List(t *testing.T) {
	t.Parallel()

	data := []byte(`- _id: 7
  name: seven
- _id: x
`)

	got, err := store.DecodeCollection(data, store.FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got, want := got.Keys(), []string{"7", "x"}; !cmp.Equal(got, want) {
		t.Errorf("keys=%v, want=%v", got, want)
	}
}

func Test_DecodeCollection_Returns_Empty_When_File_Is_Empty(t *testing.T) {
	t.Parallel()

	for _, format := range []store.Format{store.FormatYAML, store.FormatJSON} {
		got, err := store.DecodeCollection([]byte("\n"), format)
		if err != nil {
			t.Fatalf("%s: decode: %v", format, err)
		}

		if len(got) != 0 {
			t.Errorf("%s: len=%d, want=0", format, len(got))
		}
	}
}

func Test_DecodeCollection_Fails_When_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   string
		format store.Format
	}{
		{name: "bad json", data: `{"a": `, format: store.FormatJSON},
		{name: "bad yaml", data: "a: [b\n", format: store.FormatYAML},
		{name: "scalar top level", data: "42\n", format: store.FormatYAML},
		{name: "scalar body", data: "a: 1\n", format: store.FormatYAML},
		{name: "dotted id", data: "a.b:\n  x: 1\n", format: store.FormatYAML},
		{name: "list item without id", data: "- x: 1\n", format: store.FormatYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := store.DecodeCollection([]byte(tt.data), tt.format)
			if !errors.Is(err, store.ErrMalformedCollection) {
				t.Errorf("err=%v, want ErrMalformedCollection", err)
			}
		})
	}
}

func Test_EncodeCollection_Strips_IDs_And_Round_Trips(t *testing.T) {
	t.Parallel()

	coll := store.Collection{
		"alice": {"_id": "alice", "name": "Alice", "tags": []any{"x"}},
		"bob":   {"_id": "bob", "address": map[string]any{"city": "Paris"}},
	}

	for _, format := range []store.Format{store.FormatYAML, store.FormatJSON} {
		data, err := store.EncodeCollection(coll, format)
		if err != nil {
			t.Fatalf("%s: encode: %v", format, err)
		}

		got, err := store.DecodeCollection(data, format)
		if err != nil {
			t.Fatalf("%s: decode: %v", format, err)
		}

		if diff := cmp.Diff(coll, got); diff != "" {
			t.Errorf("%s: round trip mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func Test_EncodeCollection_Writes_Sorted_YAML(t *testing.T) {
	t.Parallel()

	coll := store.Collection{
		"b": {"_id": "b", "z": 1, "a": 2},
		"a": {"_id": "a"},
	}

	data, err := store.EncodeCollection(coll, store.FormatYAML)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := "a: {}\nb:\n  a: 2\n  z: 1\n"
	if got := string(data); got != want {
		t.Errorf("yaml=%q, want=%q", got, want)
	}
}

func Test_FormatFromPath_Recognizes_Extensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		format store.Format
		ok     bool
	}{
		{"people.yaml", store.FormatYAML, true},
		{"people.YML", store.FormatYAML, true},
		{"people.json", store.FormatJSON, true},
		{"README.md", 0, false},
	}

	for _, tt := range tests {
		format, ok := store.FormatFromPath(tt.path)
		if ok != tt.ok || (ok && format != tt.format) {
			t.Errorf("FormatFromPath(%q)=(%v, %v), want=(%v, %v)", tt.path, format, ok, tt.format, tt.ok)
		}
	}
}
