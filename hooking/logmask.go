package hooking

import (
	"fmt"
	"strings"
)

// LogMask selects diagnostic classes.
type LogMask uint32

// The diagnostic classes a device can report.
const (
	// LogGuestError marks invalid programming by the guest, such as an
	// operation on a locked controller.
	LogGuestError LogMask = 1 << iota

	// LogUnimp marks accesses to registers that are not modeled.
	LogUnimp

	// LogTrace marks regular device activity, such as a completed flash
	// operation.
	LogTrace

	LogNone LogMask = 0
	LogAll          = LogGuestError | LogUnimp | LogTrace
)

var logMaskNames = []struct {
	name string
	mask LogMask
}{
	{"guest_errors", LogGuestError},
	{"unimp", LogUnimp},
	{"trace", LogTrace},
}

// Has reports whether every class in other is enabled in m.
func (m LogMask) Has(other LogMask) bool {
	return other != 0 && m&other == other
}

func (m LogMask) String() string {
	if m == LogNone {
		return "none"
	}

	names := make([]string, 0, len(logMaskNames))
	for _, n := range logMaskNames {
		if m.Has(n.mask) {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, ",")
}

// ParseLogMask parses a comma separated list of class names. The names "all"
// and "none" are also accepted.
func ParseLogMask(s string) (LogMask, error) {
	mask := LogNone

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		switch item {
		case "":
			continue
		case "none":
			continue
		case "all":
			mask |= LogAll
			continue
		}

		found := false
		for _, n := range logMaskNames {
			if n.name == item {
				mask |= n.mask
				found = true
				break
			}
		}

		if !found {
			return LogNone, fmt.Errorf("unknown log class %q", item)
		}
	}

	return mask, nil
}
