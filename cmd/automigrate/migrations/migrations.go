// Package migrations tracks and applies the automigrate schema
// migrations, the way the teacher's automigrate binary walks a fixed,
// version-ordered list and lets each migration function guard its own
// idempotency with IF NOT EXISTS / column-existence checks.
package migrations

import (
	"database/sql"
	"strconv"
	"strings"

	"go.uber.org/zap"

	v0x1x0 "github.com/featurepipeline/featurepipeline/cmd/automigrate/migrations/0/1"
)

// SemVer is a parsed MAJOR.MINOR.PATCH version.
type SemVer struct {
	Major, Minor, Patch int
}

func (s SemVer) String() string {
	return strconv.Itoa(s.Major) + "." + strconv.Itoa(s.Minor) + "." + strconv.Itoa(s.Patch)
}

// LessOrEqual reports whether s should be applied to reach target.
func (s SemVer) LessOrEqual(target SemVer) bool {
	if s.Major != target.Major {
		return s.Major < target.Major
	}
	if s.Minor != target.Minor {
		return s.Minor < target.Minor
	}
	return s.Patch <= target.Patch
}

// StringToSemver parses "1.2.3" or "v1.2.3" into a SemVer.
func StringToSemver(v string) (SemVer, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return SemVer{}, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return SemVer{}, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return SemVer{}, false
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return SemVer{}, false
	}
	return SemVer{Major: major, Minor: minor, Patch: patch}, true
}

type migration struct {
	version SemVer
	apply   func(*sql.DB) error
}

/*
	To add a new migration:
	1. Create a folder under migrations/ named after the release (major.minor if it introduces one).
	2. Add a .go file with a function accepting *sql.DB and returning an error.
		- The function name must be V<MAJOR>x<MINOR>x<PATCH> (e.g. V0x1x0).
	3. Register it below, in ascending version order.
*/
var migrationsList = []migration{
	{version: SemVer{Major: 0, Minor: 1, Patch: 0}, apply: v0x1x0.V0x1x0},
}

// Migrate applies every registered migration up to and including target,
// in order. Each migration is expected to be safe to re-run.
func Migrate(target SemVer, db *sql.DB) {
	for _, m := range migrationsList {
		if !m.version.LessOrEqual(target) {
			zap.S().Infof("Skipping migration %s: newer than target %s", m.version, target)
			continue
		}
		zap.S().Infof("Applying migration %s", m.version)
		if err := m.apply(db); err != nil {
			zap.S().Fatalf("Migration %s failed: %v", m.version, err)
		}
		zap.S().Infof("Applied migration %s", m.version)
	}
}
