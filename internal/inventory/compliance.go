package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// complianceWindow is how many minor versions behind the fleet baseline a
// cluster may run and still be compliant.
const complianceWindow = 2

// Version is a parsed Kubernetes control-plane version such as "1.31".
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses "major.minor" with any trailing segments ignored.
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("version %q: want major.minor", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Baseline is the fleet-wide newest control-plane version observed in a run.
// It is fixed only after every record of the run has been accumulated, so
// the resulting compliance labels do not depend on processing order.
type Baseline struct {
	max   Version
	found bool
}

// Observe folds a cluster version into the baseline. Unparseable versions
// are ignored.
func (b *Baseline) Observe(version string) {
	v, err := ParseVersion(version)
	if err != nil {
		return
	}
	if !b.found || b.max.less(v) {
		b.max = v
		b.found = true
	}
}

// Evaluate labels a cluster version against the baseline: "1" when the
// cluster shares the baseline's major version and its minor version is
// within the compliance window, "0" otherwise, "Unknown" when either side
// cannot be parsed.
func (b *Baseline) Evaluate(version string) string {
	if !b.found {
		return "Unknown"
	}
	v, err := ParseVersion(version)
	if err != nil {
		return "Unknown"
	}
	if v.Major == b.max.Major && v.Minor >= b.max.Minor-complianceWindow {
		return "1"
	}
	return "0"
}

// ApplyCompliance fills the compliance column of every record from the
// baseline. Called once, after the last unit of the run.
func ApplyCompliance(records []ClusterRecord, b *Baseline) {
	for i := range records {
		records[i].Compliance = b.Evaluate(records[i].ClusterVersion)
	}
}

// BaselineOf builds the baseline from the versions already present in
// records.
func BaselineOf(records []ClusterRecord) *Baseline {
	var b Baseline
	for i := range records {
		b.Observe(records[i].ClusterVersion)
	}
	return &b
}
