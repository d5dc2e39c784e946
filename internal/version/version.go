// Package version holds build version information.
package version

// Overridden at build time:
// go build -ldflags "-X macrodex/internal/version.Version=0.3.0 -X macrodex/internal/version.Commit=abc123"
var (
	Version   = "0.3.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns multi-line version information.
func Full() string {
	return "macrodex version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
