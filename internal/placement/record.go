package placement

import (
	"fmt"
	"strings"
)

// ProviderRef identifies the external widget provider an instance renders.
type ProviderRef struct {
	Package string
	Class   string
}

// ParseProviderRef parses "package/class".
func ParseProviderRef(s string) (ProviderRef, error) {
	pkg, class, ok := strings.Cut(strings.TrimSpace(s), "/")
	ref := ProviderRef{Package: strings.TrimSpace(pkg), Class: strings.TrimSpace(class)}
	if !ok || !ref.Valid() {
		return ProviderRef{}, fmt.Errorf("provider %q: want package/class", s)
	}
	return ref, nil
}

func (p ProviderRef) String() string { return p.Package + "/" + p.Class }

// Valid reports whether both halves of the reference are set.
func (p ProviderRef) Valid() bool { return p.Package != "" && p.Class != "" }

// Position is a free-form coordinate kept for overlays; cell layout ignores it.
type Position struct {
	X int
	Y int
}

// Size is measured in grid cells.
type Size struct {
	Width  int
	Height int
}

// Record is the durable placement of one bound widget instance.
type Record struct {
	WidgetID int
	Provider ProviderRef
	Position Position
	Size     Size
	Page     int
}

// Filter returns the records whose widget id differs from id.
func Filter(records []Record, id int) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.WidgetID != id {
			out = append(out, r)
		}
	}
	return out
}
