package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// ReportHeader is the fixed column order of the output report.
var ReportHeader = []string{
	"RecordID",
	"AccountID",
	"AccountName",
	"Region",
	"ClusterName",
	"ClusterVersion",
	"InstanceID",
	"Current_AMI_ID",
	"Current_AMI_Publication_Date",
	"AMI_Age",
	"OS_Version",
	"InstanceType",
	"NodeState",
	"NodeUptime",
	"Latest_AMI_ID",
	"New_AMI_Publication_Date",
	"PatchPendingStatus",
	"NodeReadinessStatus",
	"Cluster_Compliance",
	"ExtractionTimestamp",
}

const (
	dateFormat      = "2006-01-02"
	timestampFormat = "2006-01-02 15:04:05"
)

func dateLabel(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(dateFormat)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// WriteReport writes records as CSV to w, header first.
func WriteReport(w io.Writer, records []ClusterRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := []string{
			r.RecordID,
			r.AccountID,
			r.AccountName,
			r.Region,
			r.ClusterName,
			r.ClusterVersion,
			orNA(r.InstanceID),
			orNA(r.CurrentAMI),
			dateLabel(r.AMIPublished),
			r.AgeLabel(),
			string(r.OS),
			orNA(r.InstanceType),
			orNA(r.NodeState),
			r.UptimeLabel(r.ExtractedAt),
			orNA(r.LatestAMI),
			dateLabel(r.LatestAMIPublished),
			r.PatchPending,
			r.Readiness,
			r.Compliance,
			r.ExtractedAt.Format(timestampFormat),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveReport writes records to a CSV file at path.
func SaveReport(path string, records []ClusterRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	if err := WriteReport(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
