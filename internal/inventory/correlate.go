package inventory

import (
	"time"

	"github.com/patchops/eks-inventory/internal/aws/ec2"
	"github.com/patchops/eks-inventory/internal/aws/eks"
	"github.com/patchops/eks-inventory/internal/aws/ssm"
	"github.com/patchops/eks-inventory/internal/kube"
	"github.com/patchops/eks-inventory/internal/logging"
)

// ClusterData bundles everything the sources resolved for one cluster.
// Optional sources may be nil or empty; correlation degrades the affected
// columns instead of dropping the record.
type ClusterData struct {
	AccountID   string
	AccountName string
	Region      string

	Cluster   eks.Cluster
	Instances []ec2.Instance
	Images    map[string]ec2.Image
	Latest    map[string]ssm.RecommendedImage
	Readiness map[string]kube.Status
}

// Correlate joins the per-cluster source results into report records, one
// per node. A cluster with no nodes still yields a single placeholder
// record so it stays visible in the report.
func Correlate(data ClusterData, now time.Time) []ClusterRecord {
	if len(data.Instances) == 0 {
		rec := NewClusterRecord(data.AccountID, data.AccountName, data.Region,
			data.Cluster.Name, data.Cluster.Version, now)
		rec.InstanceID = "N/A"
		rec.InstanceType = "N/A"
		rec.NodeState = "N/A"
		rec.CurrentAMI = "N/A"
		rec.Readiness = "N/A"
		return []ClusterRecord{rec}
	}

	records := make([]ClusterRecord, 0, len(data.Instances))
	for _, inst := range data.Instances {
		rec := NewClusterRecord(data.AccountID, data.AccountName, data.Region,
			data.Cluster.Name, data.Cluster.Version, now)
		rec.InstanceID = inst.InstanceID
		rec.InstanceType = inst.Type
		rec.NodeState = inst.State
		rec.CurrentAMI = inst.ImageID
		rec.LaunchedAt = inst.LaunchTime

		img, ok := data.Images[inst.ImageID]
		if ok {
			rec.OS = DetectOSFamily(img.Description)
			rec.SetAMIAge(img.CreationDate, now)
		} else {
			logging.Debug("cluster %s: AMI %s not describable, age unknown",
				data.Cluster.Name, inst.ImageID)
		}

		if path, ok := ssm.PathForOSFamily(string(rec.OS)); ok {
			if latest, ok := data.Latest[path]; ok {
				rec.LatestAMI = latest.ImageID
				rec.LatestAMIPublished = latest.PublishedAt
			}
		}

		if status, ok := data.Readiness[inst.InstanceID]; ok {
			rec.Readiness = string(status)
		}

		records = append(records, rec)
	}
	return records
}
