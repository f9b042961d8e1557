// Package version holds build identity injected at link time via
// ldflags, and turns it into the loader.BuildInfo an identify reply
// reports over the wire.
package version

import (
	"strconv"
	"strings"

	"downholeloader/internal/loader"
)

// Build information, injected via -ldflags "-X downholeloader/version.X=...".
// Left blank by default so a dev build's identity reply is visibly
// unversioned rather than silently plausible.
var (
	VariantTag  string
	Major       string
	Minor       string
	Baseline    string
	BuildNumber string
)

// Info parses the linked-in build strings into a loader.BuildInfo,
// falling back to 0 for a missing or malformed numeric field and to 'A'
// for a missing or malformed baseline.
func Info() loader.BuildInfo {
	baseline := byte('A')
	if b := strings.TrimSpace(Baseline); len(b) == 1 {
		baseline = b[0]
	}
	return loader.BuildInfo{
		VariantTag:   VariantTag,
		MajorVersion: atoiOr(Major, 0),
		MinorVersion: atoiOr(Minor, 0),
		Baseline:     baseline,
		BuildNumber:  atoiOr(BuildNumber, 0),
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
