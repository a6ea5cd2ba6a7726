// Package orchestrator drives a full inventory run: it expands the account
// worklist into account/region units, acquires scoped credentials per unit,
// fans the units out over a bounded worker pool, and folds the per-cluster
// results into the final record set.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/sync/errgroup"

	"github.com/patchops/eks-inventory/internal/aws/ec2"
	"github.com/patchops/eks-inventory/internal/aws/eks"
	"github.com/patchops/eks-inventory/internal/aws/ssm"
	"github.com/patchops/eks-inventory/internal/awsauth"
	"github.com/patchops/eks-inventory/internal/inventory"
	"github.com/patchops/eks-inventory/internal/kube"
	"github.com/patchops/eks-inventory/internal/logging"
)

// ClusterSource enumerates and describes clusters in one account/region.
type ClusterSource interface {
	ListClusters(ctx context.Context) ([]string, error)
	DescribeCluster(ctx context.Context, name string) (eks.Cluster, error)
}

// NodeSource resolves a cluster's backing instances and their images.
type NodeSource interface {
	ClusterNodes(ctx context.Context, clusterName string) ([]ec2.Instance, error)
	DescribeImages(ctx context.Context, imageIDs []string) (map[string]ec2.Image, error)
}

// ImageCatalog resolves the latest recommended AMIs for a cluster version.
type ImageCatalog interface {
	LatestImages(ctx context.Context, version string) map[string]ssm.RecommendedImage
}

// ReadinessProbe resolves node readiness from the cluster control plane.
type ReadinessProbe interface {
	NodeReadiness(ctx context.Context, cfg aws.Config, cluster eks.Cluster, instanceIDs []string) map[string]kube.Status
}

// Sources builds the per-unit data source clients from a scoped config.
// Injected so tests can substitute mocks per unit.
type Sources struct {
	Clusters func(cfg aws.Config) ClusterSource
	Nodes    func(cfg aws.Config) NodeSource
	Catalog  func(cfg aws.Config) ImageCatalog
}

// DefaultSources builds the real AWS clients.
func DefaultSources() Sources {
	return Sources{
		Clusters: func(cfg aws.Config) ClusterSource { return eks.NewFromConfig(cfg) },
		Nodes:    func(cfg aws.Config) NodeSource { return ec2.NewFromConfig(cfg) },
		Catalog:  func(cfg aws.Config) ImageCatalog { return ssm.NewFromConfig(cfg) },
	}
}

// Summary is the outcome of a run.
type Summary struct {
	Units     int
	Processed int
	Skipped   int
	Records   int
	Failures  []UnitFailure
}

// Partial reports whether some units failed while others succeeded.
func (s Summary) Partial() bool { return len(s.Failures) > 0 }

// Orchestrator owns one run's shared state: the credential provider, the
// identity cache, and the source factories.
type Orchestrator struct {
	provider   awsauth.Provider
	identities *awsauth.IdentityCache
	sources    Sources
	probe      ReadinessProbe
	workers    int
	now        func() time.Time
}

// Options configures a run. Zero values get sensible defaults.
type Options struct {
	Provider awsauth.Provider
	// Identities may be shared across runs; nil builds a fresh cache.
	Identities *awsauth.IdentityCache
	Sources    Sources
	// Probe may be nil to skip readiness entirely.
	Probe   ReadinessProbe
	Workers int
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:   opts.Provider,
		identities: opts.Identities,
		sources:    opts.Sources,
		probe:      opts.Probe,
		workers:    opts.Workers,
		now:        time.Now,
	}
	if o.identities == nil {
		o.identities = awsauth.NewIdentityCache()
	}
	if o.sources.Clusters == nil {
		o.sources = DefaultSources()
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

type unit struct {
	accountID string
	role      string
	region    string
}

// Run processes every account/region unit of the worklist and returns the
// correlated, compliance-labeled records. The only error it returns is
// *FatalAuthError; everything else is isolated per unit and reported in the
// summary.
func (o *Orchestrator) Run(ctx context.Context, targets []inventory.AccountTarget) (Summary, []inventory.ClusterRecord, error) {
	if verifier, ok := o.provider.(awsauth.BaseVerifier); ok {
		id, err := verifier.VerifyBase(ctx)
		if err != nil {
			return Summary{}, nil, &FatalAuthError{Err: err}
		}
		logging.Info("base identity verified: %s", id.ARN)
	}

	var units []unit
	for _, t := range targets {
		for _, region := range t.Regions {
			units = append(units, unit{accountID: t.AccountID, role: t.RoleName, region: region})
		}
	}

	summary := Summary{Units: len(units)}
	var records []inventory.ClusterRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	results := make([]unitResult, len(units))
	for i, u := range units {
		g.Go(func() error {
			results[i] = o.processUnit(gctx, u)
			return nil
		})
	}
	g.Wait()

	for i, res := range results {
		u := units[i]
		if res.fatal != nil {
			summary.Skipped++
			summary.Failures = append(summary.Failures,
				UnitFailure{AccountID: u.accountID, Region: u.region, Err: res.fatal})
			if code := awsauth.ErrorCode(res.fatal); code != "" {
				logging.Error("unit %s/%s skipped (%s): %v", u.accountID, u.region, code, res.fatal)
			} else {
				logging.Error("unit %s/%s skipped: %v", u.accountID, u.region, res.fatal)
			}
			continue
		}
		summary.Processed++
		records = append(records, res.records...)
		for _, err := range res.errs {
			summary.Failures = append(summary.Failures,
				UnitFailure{AccountID: u.accountID, Region: u.region, Err: err})
			logging.Error("unit %s/%s: %v", u.accountID, u.region, err)
		}
	}

	// The compliance baseline is the run-wide maximum version, so it can
	// only be fixed after the last unit has reported. Applying it here keeps
	// the labels independent of unit completion order.
	inventory.ApplyCompliance(records, inventory.BaselineOf(records))

	sort.Slice(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.ClusterName != b.ClusterName {
			return a.ClusterName < b.ClusterName
		}
		return a.InstanceID < b.InstanceID
	})

	summary.Records = len(records)
	return summary, records, nil
}

type unitResult struct {
	records []inventory.ClusterRecord
	// fatal aborts the whole unit; errs are per-cluster and leave the rest
	// of the unit's records intact.
	fatal error
	errs  []error
}

func (o *Orchestrator) processUnit(ctx context.Context, u unit) unitResult {
	logging.Info("processing account %s region %s", u.accountID, u.region)

	cfg, err := o.provider.Acquire(ctx, u.accountID, u.role, u.region)
	if err != nil {
		return unitResult{fatal: err}
	}

	identity, err := o.identities.Resolve(ctx, u.accountID, cfg)
	if err != nil {
		return unitResult{fatal: err}
	}

	clusterSource := o.sources.Clusters(cfg)
	nodeSource := o.sources.Nodes(cfg)
	catalog := o.sources.Catalog(cfg)

	names, err := clusterSource.ListClusters(ctx)
	if err != nil {
		return unitResult{fatal: err}
	}
	if len(names) == 0 {
		logging.Warn("account %s region %s: no clusters found", u.accountID, u.region)
		return unitResult{}
	}

	now := o.now()
	var res unitResult
	for _, name := range names {
		recs, err := o.processCluster(ctx, cfg, u, identity, name, clusterSource, nodeSource, catalog, now)
		if err != nil {
			res.errs = append(res.errs, err)
			continue
		}
		res.records = append(res.records, recs...)
	}
	return res
}

func (o *Orchestrator) processCluster(
	ctx context.Context, cfg aws.Config, u unit, identity awsauth.Identity,
	name string, clusterSource ClusterSource, nodeSource NodeSource,
	catalog ImageCatalog, now time.Time,
) ([]inventory.ClusterRecord, error) {
	cluster, err := clusterSource.DescribeCluster(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: %w", name, err)
	}

	instances, err := nodeSource.ClusterNodes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: %w", name, err)
	}

	data := inventory.ClusterData{
		AccountID:   u.accountID,
		AccountName: identity.AccountName,
		Region:      u.region,
		Cluster:     cluster,
		Instances:   instances,
	}

	if len(instances) > 0 {
		imageIDs := make([]string, 0, len(instances))
		seen := make(map[string]bool)
		for _, inst := range instances {
			if inst.ImageID != "" && !seen[inst.ImageID] {
				seen[inst.ImageID] = true
				imageIDs = append(imageIDs, inst.ImageID)
			}
		}

		images, err := nodeSource.DescribeImages(ctx, imageIDs)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", name, err)
		}
		data.Images = images
		data.Latest = catalog.LatestImages(ctx, cluster.Version)

		if o.probe != nil {
			instanceIDs := make([]string, 0, len(instances))
			for _, inst := range instances {
				instanceIDs = append(instanceIDs, inst.InstanceID)
			}
			data.Readiness = o.probe.NodeReadiness(ctx, cfg, cluster, instanceIDs)
		}
	}

	records := inventory.Correlate(data, now)
	logging.Success("cluster %s: %d records", name, len(records))
	return records, nil
}
