package federation_test

import (
	"testing"

	"github.com/n9te9/federation-gateway/internal/federation"
)

func TestWrapping_FormatParseRoundTrip(t *testing.T) {
	cases := []string{
		"Int",
		"Int!",
		"[Int]",
		"[Int!]",
		"[Int]!",
		"[Int!]!",
		"[[String]]",
		"[[String!]!]!",
		"[[[ID]!]]!",
	}
	for _, tc := range cases {
		w, named, err := federation.ParseWrapping(tc)
		if err != nil {
			t.Fatalf("ParseWrapping(%q): %v", tc, err)
		}
		if got := w.Format(named); got != tc {
			t.Errorf("round trip %q -> %q", tc, got)
		}
	}
}

func TestWrapping_RoundTripExhaustiveToDepthThree(t *testing.T) {
	// Every wrapping with up to three list levels must survive a
	// print-then-parse cycle bit-for-bit.
	var build func(depth int, levels []bool)
	build = func(depth int, levels []bool) {
		for _, inner := range []bool{false, true} {
			w, err := federation.FromLevels(levels, inner)
			if err != nil {
				t.Fatalf("FromLevels(%v, %v): %v", levels, inner, err)
			}
			printed := w.Format("T")
			parsed, named, err := federation.ParseWrapping(printed)
			if err != nil {
				t.Fatalf("ParseWrapping(%q): %v", printed, err)
			}
			if named != "T" || parsed != w {
				t.Fatalf("round trip failed for %q: got %v want %v", printed, parsed, w)
			}
		}
		if depth == 0 {
			return
		}
		for _, required := range []bool{false, true} {
			build(depth-1, append(append([]bool{}, levels...), required))
		}
	}
	build(3, nil)
}

func TestWrapping_PushPop(t *testing.T) {
	w := federation.NewWrapping(true)
	w, err := w.WrappedByRequiredList()
	if err != nil {
		t.Fatalf("WrappedByRequiredList: %v", err)
	}
	w, err = w.WrappedByNullableList()
	if err != nil {
		t.Fatalf("WrappedByNullableList: %v", err)
	}
	if got := w.Format("Int"); got != "[[Int!]!]" {
		t.Fatalf("Format = %q", got)
	}

	inner, required, ok := w.PopListWrapping()
	if !ok || required {
		t.Fatalf("outermost list must be nullable, ok=%v required=%v", ok, required)
	}
	inner2, required2, ok2 := inner.PopListWrapping()
	if !ok2 || !required2 {
		t.Fatalf("inner list must be required, ok=%v required=%v", ok2, required2)
	}
	if inner2.ListDepth() != 0 || !inner2.InnerRequired() {
		t.Fatalf("expected bare Int!, got %q", inner2.Format("Int"))
	}
}
