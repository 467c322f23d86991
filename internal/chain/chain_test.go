package chain_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regro/regolith/internal/chain"
)

func mustGet(t *testing.T, c *chain.Chain, path ...string) any {
	t.Helper()

	v, ok := c.Lookup(path...)
	if !ok {
		t.Fatalf("lookup %v: not found", path)
	}

	return v
}

func Test_Get_Merges_Nested_Mappings_When_All_Values_Are_Mappings(t *testing.T) {
	t.Parallel()

	m1 := chain.Map{"a": map[string]any{"x": 1, "y": []any{1}}}
	m2 := chain.Map{"a": map[string]any{"x": 2, "y": []any{2}}}

	c := chain.New(m1, m2)

	if got, want := mustGet(t, c, "a", "x"), any(2); got != want {
		t.Errorf("a.x=%v, want=%v", got, want)
	}

	if diff := cmp.Diff([]any{1, 2}, mustGet(t, c, "a", "y")); diff != "" {
		t.Errorf("a.y mismatch (-want +got):\n%s", diff)
	}

	a, ok := mustGet(t, c, "a").(*chain.Chain)
	if !ok {
		t.Fatalf("a is %T, want *chain.Chain", mustGet(t, c, "a"))
	}

	if got, want := a.Len(), 2; got != want {
		t.Errorf("len(a)=%d, want=%d", got, want)
	}
}

func Test_Get_Returns_Lower_Value_When_Higher_Mapping_Lacks_Key(t *testing.T) {
	t.Parallel()

	c := chain.New(chain.Map{"b": 5}, chain.Map{})

	if got, want := mustGet(t, c, "b"), any(5); got != want {
		t.Errorf("b=%v, want=%v", got, want)
	}
}

func Test_Get_Returns_Highest_Value_When_Kinds_Differ(t *testing.T) {
	t.Parallel()

	c := chain.New(chain.Map{"c": []any{1, 2}}, chain.Map{"c": "scalar"})

	if got, want := mustGet(t, c, "c"), any("scalar"); got != want {
		t.Errorf("c=%v, want=%v", got, want)
	}

	// A mapping shadowed by a scalar is not merged either.
	c = chain.New(chain.Map{"d": "low"}, chain.Map{"d": map[string]any{"k": 1}})

	got := chain.ToPlain(mustGet(t, c, "d"))
	if diff := cmp.Diff(map[string]any{"k": 1}, got); diff != "" {
		t.Errorf("d mismatch (-want +got):\n%s", diff)
	}
}

func Test_Get_Concatenates_Lists_Low_To_High_When_Some_Mappings_Omit_Key(t *testing.T) {
	t.Parallel()

	c := chain.New(
		chain.Map{"l": []any{"a", "b"}},
		chain.Map{},
		chain.Map{"l": []any{"c"}},
		chain.Map{"other": 1},
		chain.Map{"l": []any{}},
		chain.Map{"l": []any{"d"}},
	)

	if diff := cmp.Diff([]any{"a", "b", "c", "d"}, mustGet(t, c, "l")); diff != "" {
		t.Errorf("l mismatch (-want +got):\n%s", diff)
	}
}

func Test_Get_Returns_Scalar_From_Highest_Defining_Mapping_When_Scalars(t *testing.T) {
	t.Parallel()

	c := chain.New(chain.Map{"k": 1}, chain.Map{"k": 2}, chain.Map{"j": 9}, chain.Map{"k": 3}, chain.Map{})

	if got, want := mustGet(t, c, "k"), any(3); got != want {
		t.Errorf("k=%v, want=%v", got, want)
	}
}

func Test_Get_Merges_Three_Levels_Deep(t *testing.T) {
	t.Parallel()

	m1 := chain.Map{"l1": map[string]any{
		"l2": map[string]any{
			"l3": map[string]any{"s": "low", "only_low": true, "list": []any{1}},
		},
	}}
	m2 := chain.Map{"l1": map[string]any{
		"l2": map[string]any{
			"l3":    map[string]any{"s": "high", "list": []any{2}},
			"extra": 7,
		},
	}}

	c := chain.New(m1, m2)

	want := map[string]any{
		"l1": map[string]any{
			"l2": map[string]any{
				"l3":    map[string]any{"s": "high", "only_low": true, "list": []any{1, 2}},
				"extra": 7,
			},
		},
	}

	if diff := cmp.Diff(want, c.Plain()); diff != "" {
		t.Errorf("plain mismatch (-want +got):\n%s", diff)
	}

	if got, want := mustGet(t, c, "l1", "l2", "l3", "s"), any("high"); got != want {
		t.Errorf("l1.l2.l3.s=%v, want=%v", got, want)
	}
}

func Test_Get_Reports_Missing_When_No_Mapping_Defines_Key(t *testing.T) {
	t.Parallel()

	c := chain.New(chain.Map{"a": 1}, chain.Map{"b": 2})

	if _, ok := c.Get("z"); ok {
		t.Fatal("z should be absent")
	}

	_, err := c.GetErr("z")
	if !errors.Is(err, chain.ErrKeyNotFound) {
		t.Fatalf("err=%v, want ErrKeyNotFound", err)
	}

	if _, ok := c.Lookup("a", "deeper"); ok {
		t.Fatal("lookup through a scalar should fail")
	}
}

func Test_Set_Writes_To_Highest_Defining_Mapping(t *testing.T) {
	t.Parallel()

	low := chain.Map{"k": 1, "only_low": 1}
	mid := chain.Map{"k": 2}
	high := chain.Map{}

	c := chain.New(low, mid, high)
	c.Set("k", 20)

	if got, want := mid["k"], any(20); got != want {
		t.Errorf("mid.k=%v, want=%v", got, want)
	}

	if got, want := low["k"], any(1); got != want {
		t.Errorf("low.k=%v, want=%v", got, want)
	}

	if _, ok := high["k"]; ok {
		t.Error("high should not receive k")
	}
}

func Test_Set_Creates_Key_In_Lowest_Mapping_When_Undefined(t *testing.T) {
	t.Parallel()

	low := chain.Map{}
	high := chain.Map{}

	c := chain.New(low, high)
	c.Set("new", "v")

	if got, want := low["new"], any("v"); got != want {
		t.Errorf("low.new=%v, want=%v", got, want)
	}

	if len(high) != 0 {
		t.Errorf("high=%v, want empty", high)
	}
}

func Test_Set_Skips_Nil_Maps_When_Chain_Built_With_Them(t *testing.T) {
	t.Parallel()

	var empty chain.Map

	var missing *chain.Chain

	high := chain.Map{"a": 1}

	c := chain.New(empty, missing, high)
	c.Set("b", 2)

	if got, want := len(c.Maps()), 1; got != want {
		t.Fatalf("len(maps)=%d, want=%d", got, want)
	}

	want := chain.Map{"a": 1, "b": 2}
	if diff := cmp.Diff(want, high); diff != "" {
		t.Errorf("high mismatch (-want +got):\n%s", diff)
	}
}

func Test_Set_Writes_Through_Nested_Chains(t *testing.T) {
	t.Parallel()

	low := chain.Map{"doc": map[string]any{"a": 1}}
	high := chain.Map{"doc": map[string]any{"b": 2}}

	c := chain.New(low, high)

	doc := mustGet(t, c, "doc").(*chain.Chain)
	doc.Set("b", 3)
	doc.Set("c", 4)

	if diff := cmp.Diff(map[string]any{"b": 3}, high["doc"]); diff != "" {
		t.Errorf("high.doc mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(map[string]any{"a": 1, "c": 4}, low["doc"]); diff != "" {
		t.Errorf("low.doc mismatch (-want +got):\n%s", diff)
	}
}

func Test_ToPlain_Is_Idempotent_When_Rewrapped(t *testing.T) {
	t.Parallel()

	c := chain.New(
		chain.Map{"a": map[string]any{"x": 1, "y": []any{map[string]any{"n": 1}}}, "s": "one"},
		chain.Map{"a": map[string]any{"z": map[string]any{"deep": []any{1}}}, "s": "two"},
	)

	first := c.Plain()
	second := chain.New(chain.Map(first)).Plain()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func Test_ToPlain_Copies_Containers(t *testing.T) {
	t.Parallel()

	src := map[string]any{"list": []any{1}, "m": map[string]any{"k": "v"}}

	out := chain.ToPlain(src).(map[string]any)
	out["list"].([]any)[0] = 99
	out["m"].(map[string]any)["k"] = "changed"

	if got, want := src["list"].([]any)[0], any(1); got != want {
		t.Errorf("source list mutated: %v", got)
	}

	if got, want := src["m"].(map[string]any)["k"], any("v"); got != want {
		t.Errorf("source map mutated: %v", got)
	}
}

func Test_Keys_Returns_Sorted_Union(t *testing.T) {
	t.Parallel()

	c := chain.New(chain.Map{"b": 1, "a": 1}, chain.Map{"c": 1, "a": 2})

	if diff := cmp.Diff([]string{"a", "b", "c"}, c.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func Test_KindOf_Classifies_Values(t *testing.T) {
	t.Parallel()

	type named map[string]any

	tests := []struct {
		name  string
		value any
		want  chain.Kind
	}{
		{"nil", nil, chain.KindScalar},
		{"string", "s", chain.KindScalar},
		{"int", 3, chain.KindScalar},
		{"bytes", []byte("x"), chain.KindScalar},
		{"map", map[string]any{}, chain.KindMapping},
		{"named map", named{}, chain.KindMapping},
		{"chain", chain.New(), chain.KindMapping},
		{"list", []any{}, chain.KindSequence},
		{"typed list", []string{"a"}, chain.KindSequence},
		{"int keyed map", map[int]any{}, chain.KindScalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := chain.KindOf(tt.value); got != tt.want {
				t.Errorf("KindOf(%#v)=%v, want=%v", tt.value, got, tt.want)
			}
		})
	}
}
