package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectOSFamily(t *testing.T) {
	cases := map[string]OSFamily{
		"Amazon Linux 2023 AMI optimized for EKS":        OSAmazonLinux2023,
		"Amazon Linux 2 AMI optimized for EKS":           OSAmazonLinux2,
		"bottlerocket-aws-k8s-1.31-x86_64":               OSBottlerocket,
		"Canonical, Ubuntu, 22.04 LTS":                   OSUbuntu,
		"Windows_Server-2022-English-Full-EKS_Optimized": OSUnknown,
		"": OSUnknown,
	}
	for desc, want := range cases {
		assert.Equal(t, want, DetectOSFamily(desc), "description %q", desc)
	}
}

func TestSetAMIAge(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	fresh := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	fresh.SetAMIAge(now.Add(-10*24*time.Hour), now)
	assert.Equal(t, 10, fresh.AMIAgeDays)
	assert.Equal(t, "False", fresh.PatchPending)
	assert.Equal(t, "10 days", fresh.AgeLabel())

	stale := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	stale.SetAMIAge(now.Add(-45*24*time.Hour), now)
	assert.Equal(t, 45, stale.AMIAgeDays)
	assert.Equal(t, "True", stale.PatchPending)

	// Exactly at the threshold counts as pending.
	edge := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	edge.SetAMIAge(now.Add(-30*24*time.Hour), now)
	assert.Equal(t, "True", edge.PatchPending)

	// A publication date ahead of the clock must not go negative.
	future := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	future.SetAMIAge(now.Add(48*time.Hour), now)
	assert.Equal(t, 0, future.AMIAgeDays)
	assert.Equal(t, "0 days", future.AgeLabel())
	assert.Equal(t, "False", future.PatchPending)
}

func TestSetAMIAge_UnknownPublication(t *testing.T) {
	now := time.Now()
	rec := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	rec.SetAMIAge(time.Time{}, now)
	assert.Equal(t, "N/A", rec.AgeLabel())
	assert.Equal(t, "Unknown", rec.PatchPending)
}

func TestUptimeLabel(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	rec := ClusterRecord{LaunchedAt: now.Add(-(3*24 + 5) * time.Hour)}
	assert.Equal(t, "3 days 5 hours", rec.UptimeLabel(now))

	rec = ClusterRecord{LaunchedAt: now.Add(-30 * time.Minute)}
	assert.Equal(t, "0 days 0 hours", rec.UptimeLabel(now))

	rec = ClusterRecord{}
	assert.Equal(t, "N/A", rec.UptimeLabel(now))
}

func TestNewClusterRecord_UniqueIDs(t *testing.T) {
	now := time.Now()
	a := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	b := NewClusterRecord("111122223333", "prod", "us-east-1", "c", "1.31", now)
	assert.NotEmpty(t, a.RecordID)
	assert.NotEqual(t, a.RecordID, b.RecordID)
}
