package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// patchThreshold is the AMI age beyond which a node is considered to have
// a pending patch.
const patchThreshold = 30 * 24 * time.Hour

// ageUnknown marks a record whose AMI publication date could not be
// resolved.
const ageUnknown = -1

// OSFamily is the operating-system family of a node's AMI, derived from the
// image description.
type OSFamily string

const (
	OSAmazonLinux2    OSFamily = "Amazon Linux 2"
	OSAmazonLinux2023 OSFamily = "Amazon Linux 2023"
	OSBottlerocket    OSFamily = "Bottlerocket"
	OSUbuntu          OSFamily = "Ubuntu"
	OSUnknown         OSFamily = "Unknown"
)

// DetectOSFamily classifies an AMI description. "Amazon Linux 2023" is
// checked before "Amazon Linux 2" since the former contains the latter as a
// substring.
func DetectOSFamily(description string) OSFamily {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "amazon linux 2023"):
		return OSAmazonLinux2023
	case strings.Contains(d, "amazon linux 2"):
		return OSAmazonLinux2
	case strings.Contains(d, "bottlerocket"):
		return OSBottlerocket
	case strings.Contains(d, "ubuntu"):
		return OSUbuntu
	default:
		return OSUnknown
	}
}

// ClusterRecord is one report row: a node of a cluster, or the cluster
// itself when it has no nodes.
type ClusterRecord struct {
	RecordID       string
	AccountID      string
	AccountName    string
	Region         string
	ClusterName    string
	ClusterVersion string

	InstanceID   string
	CurrentAMI   string
	AMIPublished time.Time
	AMIAgeDays   int
	OS           OSFamily
	InstanceType string
	NodeState    string
	LaunchedAt   time.Time

	LatestAMI          string
	LatestAMIPublished time.Time

	PatchPending string
	Readiness    string
	Compliance   string

	ExtractedAt time.Time
}

// NewClusterRecord starts a record with identity fields filled and the rest
// at their unknown defaults.
func NewClusterRecord(accountID, accountName, region, clusterName, clusterVersion string, now time.Time) ClusterRecord {
	return ClusterRecord{
		RecordID:       uuid.NewString(),
		AccountID:      accountID,
		AccountName:    accountName,
		Region:         region,
		ClusterName:    clusterName,
		ClusterVersion: clusterVersion,
		AMIAgeDays:     ageUnknown,
		OS:             OSUnknown,
		Readiness:      "Unknown",
		PatchPending:   "Unknown",
		ExtractedAt:    now,
	}
}

// SetAMIAge records the AMI age and derives the patch-pending flag from the
// threshold.
func (r *ClusterRecord) SetAMIAge(published, now time.Time) {
	if published.IsZero() {
		r.AMIAgeDays = ageUnknown
		r.PatchPending = "Unknown"
		return
	}
	r.AMIPublished = published
	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	r.AMIAgeDays = int(age.Hours() / 24)
	if age >= patchThreshold {
		r.PatchPending = "True"
	} else {
		r.PatchPending = "False"
	}
}

// AgeLabel renders the AMI age column, "N/A" when unresolved.
func (r *ClusterRecord) AgeLabel() string {
	if r.AMIAgeDays == ageUnknown {
		return "N/A"
	}
	return fmt.Sprintf("%d days", r.AMIAgeDays)
}

// UptimeLabel renders node uptime as "D days H hours", or "N/A" when the
// launch time is unknown.
func (r *ClusterRecord) UptimeLabel(now time.Time) string {
	if r.LaunchedAt.IsZero() {
		return "N/A"
	}
	up := now.Sub(r.LaunchedAt)
	if up < 0 {
		up = 0
	}
	days := int(up.Hours()) / 24
	hours := int(up.Hours()) % 24
	return fmt.Sprintf("%d days %d hours", days, hours)
}
