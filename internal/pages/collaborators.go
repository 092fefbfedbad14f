package pages

// GridCapacity bounds widget sizes on a page.
type GridCapacity interface {
	Columns() int
	MaxRows() int
}

// FixedGrid is a GridCapacity with constant bounds.
type FixedGrid struct {
	Cols int
	Rows int
}

func (g FixedGrid) Columns() int { return g.Cols }
func (g FixedGrid) MaxRows() int { return g.Rows }

// VisibilityFunc reports whether an app package should be shown.
type VisibilityFunc func(pkg string) bool

// AllVisible shows every app.
func AllVisible(string) bool { return true }

// HideApps returns a VisibilityFunc that hides the given packages.
func HideApps(packages []string) VisibilityFunc {
	if len(packages) == 0 {
		return AllVisible
	}
	hidden := make(map[string]struct{}, len(packages))
	for _, pkg := range packages {
		hidden[pkg] = struct{}{}
	}
	return func(pkg string) bool {
		_, h := hidden[pkg]
		return !h
	}
}
