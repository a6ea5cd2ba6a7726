// Package inventory holds the domain model of the fleet report: the account
// worklist, per-node records, version compliance, and CSV serialization.
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/patchops/eks-inventory/internal/logging"
)

// AccountTarget is one row of the worklist: an account, the role to assume
// in it, and the regions to scan.
type AccountTarget struct {
	AccountID string
	RoleName  string
	Regions   []string
}

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// inputHeader is the required column set of the worklist CSV.
var inputHeader = []string{"account_id", "role_name", "region"}

// LoadTargets reads the account worklist CSV. Malformed rows are logged and
// skipped; an error is returned only when the header is wrong or no valid
// row remains.
func LoadTargets(path string) ([]AccountTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening accounts file: %w", err)
	}
	defer f.Close()
	return ParseTargets(f)
}

// ParseTargets parses worklist rows from r. See LoadTargets.
func ParseTargets(r io.Reader) ([]AccountTarget, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading accounts header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var targets []AccountTarget
	line := 1
	for {
		row, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			logging.Warn("accounts line %d: %v, skipping", line, err)
			continue
		}

		target, err := parseRow(row)
		if err != nil {
			logging.Warn("accounts line %d: %v, skipping", line, err)
			continue
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("accounts file contains no valid rows")
	}
	return targets, nil
}

func checkHeader(header []string) error {
	if len(header) < len(inputHeader) {
		return fmt.Errorf("accounts header %v, want %v", header, inputHeader)
	}
	for i, want := range inputHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("accounts header column %d is %q, want %q", i+1, header[i], want)
		}
	}
	return nil
}

func parseRow(row []string) (AccountTarget, error) {
	if len(row) < 3 {
		return AccountTarget{}, fmt.Errorf("row has %d columns, want 3", len(row))
	}

	accountID := strings.TrimSpace(row[0])
	if !accountIDPattern.MatchString(accountID) {
		return AccountTarget{}, fmt.Errorf("account id %q is not 12 digits", accountID)
	}

	roleName := strings.TrimSpace(row[1])
	if roleName == "" {
		return AccountTarget{}, fmt.Errorf("account %s has an empty role name", accountID)
	}

	regions := splitRegions(row[2])
	if len(regions) == 0 {
		return AccountTarget{}, fmt.Errorf("account %s has no regions", accountID)
	}

	return AccountTarget{AccountID: accountID, RoleName: roleName, Regions: regions}, nil
}

// splitRegions accepts comma or semicolon delimited region lists.
func splitRegions(field string) []string {
	fields := strings.FieldsFunc(field, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var regions []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			regions = append(regions, f)
		}
	}
	return regions
}
