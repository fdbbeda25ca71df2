package verify

import (
	"regexp"

	"golang.org/x/mod/semver"
)

// DefaultMinSchema is the oldest catalog schema this build reads.
const DefaultMinSchema = "1.0"

var schemaPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

// ValidSchemaVersion reports whether s is a MAJOR.MINOR schema version.
func ValidSchemaVersion(s string) bool {
	return schemaPattern.MatchString(s)
}

// SchemaSupported reports whether a catalog declaring version can be read by a
// build whose minimum supported schema is minimum. Both must be MAJOR.MINOR,
// the major versions must match and version must not be older than minimum.
func SchemaSupported(version, minimum string) bool {
	if !ValidSchemaVersion(version) || !ValidSchemaVersion(minimum) {
		return false
	}
	v, m := "v"+version, "v"+minimum
	if semver.Major(v) != semver.Major(m) {
		return false
	}
	return semver.Compare(v, m) >= 0
}
