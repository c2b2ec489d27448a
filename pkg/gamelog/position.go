package gamelog

import "strings"

// Position codes recognised by the bounding layer.
const (
	PointGuard    = "PG"
	ShootingGuard = "SG"
	SmallForward  = "SF"
	PowerForward  = "PF"
	Center        = "C"
	Guard         = "G"
	Forward       = "F"
)

// NormalizePosition maps the many spellings found in roster feeds onto a
// position code. Hyphenated dual positions ("Guard-Forward", "F-C") resolve to
// the first listed role. Unknown inputs return "".
func NormalizePosition(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, "-/"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}

	switch s {
	case "PG", "POINT GUARD":
		return PointGuard
	case "SG", "SHOOTING GUARD":
		return ShootingGuard
	case "SF", "SMALL FORWARD":
		return SmallForward
	case "PF", "POWER FORWARD":
		return PowerForward
	case "C", "CENTER", "CENTRE":
		return Center
	case "G", "GUARD":
		return Guard
	case "F", "FORWARD":
		return Forward
	}
	return ""
}

// Category collapses a position code into guard, forward or center.
func Category(code string) string {
	switch code {
	case PointGuard, ShootingGuard, Guard:
		return "guard"
	case SmallForward, PowerForward, Forward:
		return "forward"
	case Center:
		return "center"
	}
	return ""
}
