// Package federation holds small pieces shared by the supergraph model (C1)
// and the solution-space builder (C3): GraphQL type-wrapping bit-packing.
// Directive-argument reading lives in internal/supergraph.
package federation

import (
	"fmt"
	"strings"
)

// ringBits is the width of the cyclic list-wrapping ring. A Wrapping can
// therefore express at most ringBits nested list wrappers.
const ringBits = 21

const ringMask = uint32(1)<<ringBits - 1

// Wrapping bit-packs GraphQL type wrapping (nullability plus list depth and
// per-level list nullability) into a single 32-bit value:
//
//	bit 0        inner-required (the named type itself is non-null)
//	bits 1-5     start: index (mod ringBits) of the innermost list wrapper
//	bits 6-10    end: one past the index of the outermost list wrapper
//	bits 11-31   a 21-bit ring; bit i (for start <= i < end, taken mod
//	             ringBits) is 1 if that list level is itself non-null
//
// Invariant: end-start <= ringBits. A zero Wrapping is a bare nullable named
// type.
type Wrapping uint32

func (w Wrapping) innerRequired() bool { return w&1 != 0 }
func (w Wrapping) start() uint8        { return uint8((w >> 1) & 0x1F) }
func (w Wrapping) end() uint8          { return uint8((w >> 6) & 0x1F) }
func (w Wrapping) ring() uint32        { return (uint32(w) >> 11) & ringMask }

func compose(innerRequired bool, start, end uint8, ring uint32) Wrapping {
	var w Wrapping
	if innerRequired {
		w |= 1
	}
	w |= Wrapping(start&0x1F) << 1
	w |= Wrapping(end&0x1F) << 6
	w |= Wrapping(ring&ringMask) << 11
	return w
}

// InnerRequired reports whether the named type at the bottom of the wrapping
// is non-null.
func (w Wrapping) InnerRequired() bool { return w.innerRequired() }

// ListDepth reports how many list wrappers are present.
func (w Wrapping) ListDepth() int { return int(w.end() - w.start()) }

// NewWrapping returns the wrapping for a bare named type, nullable or
// non-null, with no list wrapping.
func NewWrapping(innerRequired bool) Wrapping {
	return compose(innerRequired, 0, 0, 0)
}

func (w Wrapping) ringBit(i uint8) bool {
	pos := i % ringBits
	return w.ring()&(1<<pos) != 0
}

func (w Wrapping) withRingBit(i uint8, v bool) Wrapping {
	pos := i % ringBits
	ring := w.ring()
	if v {
		ring |= 1 << pos
	} else {
		ring &^= 1 << pos
	}
	return compose(w.innerRequired(), w.start(), w.end(), ring)
}

// pushOuterList adds one more list wrapper as the new outermost layer.
func (w Wrapping) pushOuterList(required bool) (Wrapping, error) {
	if w.ListDepth() >= ringBits {
		return w, fmt.Errorf("federation: wrapping exceeds %d list levels", ringBits)
	}
	end := w.end()
	nw := w.withRingBit(end, required)
	nw = compose(nw.innerRequired(), nw.start(), end+1, nw.ring())
	return nw, nil
}

// WrappedByRequiredList returns w wrapped in one more non-null list: [w]!.
func (w Wrapping) WrappedByRequiredList() (Wrapping, error) { return w.pushOuterList(true) }

// WrappedByNullableList returns w wrapped in one more nullable list: [w].
func (w Wrapping) WrappedByNullableList() (Wrapping, error) { return w.pushOuterList(false) }

// PopListWrapping removes the outermost list wrapper, returning the inner
// wrapping. ok is false if w has no list wrapping to pop.
func (w Wrapping) PopListWrapping() (inner Wrapping, required bool, ok bool) {
	if w.ListDepth() == 0 {
		return w, false, false
	}
	end := w.end() - 1
	required = w.ringBit(end)
	nw := compose(w.innerRequired(), w.start(), end, w.ring())
	return nw, required, true
}

// ListLevel describes one list-wrapping layer, from innermost to outermost.
type ListLevel struct {
	Required bool
}

// Levels returns the list-wrapping layers from innermost to outermost.
func (w Wrapping) Levels() []ListLevel {
	depth := w.ListDepth()
	levels := make([]ListLevel, depth)
	for i := 0; i < depth; i++ {
		levels[i] = ListLevel{Required: w.ringBit(w.start() + uint8(i))}
	}
	return levels
}

// Format renders w applied to namedType as GraphQL type syntax, e.g.
// Format("Int") with one required list level and a non-null inner type
// yields "[Int!]!".
func (w Wrapping) Format(namedType string) string {
	out := namedType
	if w.innerRequired() {
		out += "!"
	}
	for _, lvl := range w.Levels() {
		out = "[" + out + "]"
		if lvl.Required {
			out += "!"
		}
	}
	return out
}

// ParseWrapping parses GraphQL type syntax into its named type and Wrapping.
// It is the inverse of Format: ParseWrapping(w.Format(name)) reproduces
// (w, name) for any w representable within ringBits list levels.
func ParseWrapping(gqlType string) (Wrapping, string, error) {
	s := strings.TrimSpace(gqlType)
	levels, named, innerRequired, err := parseTypeLevels(s)
	if err != nil {
		return 0, "", err
	}
	if len(levels) > ringBits {
		return 0, "", fmt.Errorf("federation: type %q exceeds %d list levels", gqlType, ringBits)
	}
	w, err := FromLevels(levels, innerRequired)
	if err != nil {
		return 0, "", err
	}
	return w, named, nil
}

// FromLevels builds a Wrapping from list-required flags given outermost
// first (as produced by walking a nested AST type from the outside in) plus
// whether the named type itself is non-null.
func FromLevels(levelsOuterFirst []bool, innerRequired bool) (Wrapping, error) {
	w := NewWrapping(innerRequired)
	// levels is outermost-first; apply innermost-first so the ring is filled
	// in the innermost->outermost order Levels() expects.
	for i := len(levelsOuterFirst) - 1; i >= 0; i-- {
		var err error
		w, err = w.pushOuterList(levelsOuterFirst[i])
		if err != nil {
			return 0, err
		}
	}
	return w, nil
}

// parseTypeLevels recursively descends GraphQL type syntax, returning the
// list-required flags outermost-first, the named type, and whether the
// named type itself is non-null.
func parseTypeLevels(s string) (levels []bool, named string, namedRequired bool, err error) {
	if s == "" {
		return nil, "", false, fmt.Errorf("federation: empty type")
	}
	if strings.HasPrefix(s, "[") {
		depth := 0
		closeIdx := -1
		for i, r := range s {
			switch r {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					closeIdx = i
				}
			}
			if closeIdx >= 0 {
				break
			}
		}
		if closeIdx < 0 {
			return nil, "", false, fmt.Errorf("federation: unbalanced brackets in %q", s)
		}
		inner := s[1:closeIdx]
		rest := s[closeIdx+1:]
		required := false
		if strings.HasPrefix(rest, "!") {
			required = true
			rest = rest[1:]
		}
		if rest != "" {
			return nil, "", false, fmt.Errorf("federation: trailing input %q after list type", rest)
		}
		innerLevels, n, nr, ierr := parseTypeLevels(inner)
		if ierr != nil {
			return nil, "", false, ierr
		}
		return append([]bool{required}, innerLevels...), n, nr, nil
	}
	required := strings.HasSuffix(s, "!")
	name := strings.TrimSuffix(s, "!")
	if name == "" {
		return nil, "", false, fmt.Errorf("federation: empty named type in %q", s)
	}
	return nil, name, required, nil
}
