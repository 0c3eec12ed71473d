package recognize

import (
	"fmt"
	"strings"
)

// Mode selects the recognition flavour: one object per query image or
// several.
type Mode int

const (
	Single Mode = iota
	Multi
)

// String returns the name the SOAP API uses for the mode.
func (m Mode) String() string {
	if m == Multi {
		return "Multi"
	}
	return "Single"
}

// urlSegment is the path segment of the recognition endpoint.
func (m Mode) urlSegment() string {
	if m == Multi {
		return "multi/"
	}
	return "single/"
}

// ParseMode accepts "single" or "multi" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "":
		return Single, nil
	case "multi":
		return Multi, nil
	default:
		return Single, fmt.Errorf("unknown recognition mode %q", s)
	}
}

// Limits are the query image constraints the service enforces for a mode.
type Limits struct {
	MaxFileSizeKB float64
	MinDimension  int
	MinSurfaceMpx float64
	MaxSurfaceMpx float64
}

var modeLimits = map[Mode]Limits{
	Single: {MaxFileSizeKB: 500.0, MinDimension: 100, MinSurfaceMpx: 0.05, MaxSurfaceMpx: 0.31},
	Multi:  {MaxFileSizeKB: 3500.0, MinDimension: 100, MinSurfaceMpx: 0.1, MaxSurfaceMpx: 5.1},
}

// LimitsFor returns the thresholds of a mode.
func LimitsFor(m Mode) Limits {
	return modeLimits[m]
}
