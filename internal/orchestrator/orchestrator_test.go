package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchops/eks-inventory/internal/aws/ec2"
	"github.com/patchops/eks-inventory/internal/aws/eks"
	"github.com/patchops/eks-inventory/internal/aws/ssm"
	"github.com/patchops/eks-inventory/internal/awsauth"
	"github.com/patchops/eks-inventory/internal/inventory"
	"github.com/patchops/eks-inventory/internal/kube"
	"github.com/patchops/eks-inventory/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetOutput(&bytes.Buffer{})
	code := m.Run()
	logging.SetOutput(os.Stderr)
	os.Exit(code)
}

// fakeProvider keys behavior by account; the returned config carries the
// region so source mocks can tell units apart.
type fakeProvider struct {
	acquireErr map[string]error
	calls      atomic.Int32
}

func (p *fakeProvider) Acquire(ctx context.Context, accountID, role, region string) (aws.Config, error) {
	p.calls.Add(1)
	if err := p.acquireErr[accountID]; err != nil {
		return aws.Config{}, &awsauth.AuthError{Account: accountID, Role: role, Region: region, Err: err}
	}
	return aws.Config{Region: region}, nil
}

type fakeVerifier struct {
	fakeProvider
	baseErr error
}

func (p *fakeVerifier) VerifyBase(ctx context.Context) (awsauth.Identity, error) {
	if p.baseErr != nil {
		return awsauth.Identity{}, p.baseErr
	}
	return awsauth.Identity{AccountID: "000011112222", ARN: "arn:aws:iam::000011112222:user/base"}, nil
}

type fakeClusterSource struct {
	clusters map[string]eks.Cluster
	listErr  error
	descErr  map[string]error
}

func (s *fakeClusterSource) ListClusters(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.clusters))
	for name := range s.clusters {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeClusterSource) DescribeCluster(ctx context.Context, name string) (eks.Cluster, error) {
	if err := s.descErr[name]; err != nil {
		return eks.Cluster{}, err
	}
	return s.clusters[name], nil
}

type fakeNodeSource struct {
	nodes  map[string][]ec2.Instance
	images map[string]ec2.Image
}

func (s *fakeNodeSource) ClusterNodes(ctx context.Context, clusterName string) ([]ec2.Instance, error) {
	return s.nodes[clusterName], nil
}

func (s *fakeNodeSource) DescribeImages(ctx context.Context, imageIDs []string) (map[string]ec2.Image, error) {
	out := make(map[string]ec2.Image)
	for _, id := range imageIDs {
		if img, ok := s.images[id]; ok {
			out[id] = img
		}
	}
	return out, nil
}

type fakeCatalog struct{}

func (fakeCatalog) LatestImages(ctx context.Context, version string) map[string]ssm.RecommendedImage {
	return map[string]ssm.RecommendedImage{
		ssm.PathAmazonLinux2023: {ImageID: "ami-latest", PublishedAt: time.Now()},
	}
}

type fakeProbe struct {
	calls atomic.Int32
}

func (p *fakeProbe) NodeReadiness(ctx context.Context, cfg aws.Config, cluster eks.Cluster, instanceIDs []string) map[string]kube.Status {
	p.calls.Add(1)
	out := make(map[string]kube.Status, len(instanceIDs))
	for _, id := range instanceIDs {
		out[id] = kube.StatusReady
	}
	return out
}

// countingIdentityFactory returns mocks that count remote lookups.
type countingIdentity struct {
	stsCalls atomic.Int32
}

func (c *countingIdentity) factory(cfg aws.Config) (awsauth.STSIdentityAPI, awsauth.IAMAliasAPI, awsauth.OrgAccountAPI) {
	return c, c, c
}

func (c *countingIdentity) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	c.stsCalls.Add(1)
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("111122223333"),
		Arn:     aws.String("arn:aws:sts::111122223333:assumed-role/r/s"),
		UserId:  aws.String("AROA123"),
	}, nil
}

func (c *countingIdentity) ListAccountAliases(ctx context.Context, params *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error) {
	return &iam.ListAccountAliasesOutput{AccountAliases: []string{"prod-main"}}, nil
}

func (c *countingIdentity) DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
	return nil, errors.New("not used")
}

func sourcesByRegion(perRegion map[string]*fakeClusterSource, nodes *fakeNodeSource) Sources {
	return Sources{
		Clusters: func(cfg aws.Config) ClusterSource {
			if s, ok := perRegion[cfg.Region]; ok {
				return s
			}
			return &fakeClusterSource{}
		},
		Nodes:   func(cfg aws.Config) NodeSource { return nodes },
		Catalog: func(cfg aws.Config) ImageCatalog { return fakeCatalog{} },
	}
}

func TestRun_FatalBaseAuth(t *testing.T) {
	provider := &fakeVerifier{baseErr: errors.New("ExpiredToken")}
	o := New(Options{Provider: provider, Sources: sourcesByRegion(nil, &fakeNodeSource{})})

	_, _, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1"}},
	})

	var fatal *FatalAuthError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, int32(0), provider.calls.Load(), "no unit may start after fatal base auth failure")
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{acquireErr: map[string]error{"444455556666": errors.New("AccessDenied")}}

	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {clusters: map[string]eks.Cluster{
			"payments": {Name: "payments", Version: "1.31", Status: "ACTIVE"},
		}},
	}
	nodes := &fakeNodeSource{
		nodes: map[string][]ec2.Instance{
			"payments": {{InstanceID: "i-1", Type: "m5.large", State: "running", ImageID: "ami-a", LaunchTime: now.Add(-time.Hour)}},
		},
		images: map[string]ec2.Image{
			"ami-a": {ImageID: "ami-a", CreationDate: now.Add(-10 * 24 * time.Hour), Description: "Amazon Linux 2023"},
		},
	}

	o := New(Options{
		Provider:   provider,
		Identities: awsauth.NewIdentityCacheWithFactory((&countingIdentity{}).factory),
		Sources:    sourcesByRegion(perRegion, nodes),
		Workers:    2,
	})
	summary, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1"}},
		{AccountID: "444455556666", RoleName: "Role", Regions: []string{"us-east-1"}},
	})

	require.NoError(t, err, "a failed unit must not abort the run")
	assert.Equal(t, 2, summary.Units)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, summary.Partial())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "444455556666", summary.Failures[0].AccountID)

	require.Len(t, records, 1)
	assert.Equal(t, "111122223333", records[0].AccountID)
	assert.Equal(t, "i-1", records[0].InstanceID)
}

func TestRun_IdentityCachedAcrossRegions(t *testing.T) {
	counter := &countingIdentity{}
	cache := awsauth.NewIdentityCacheWithFactory(counter.factory)

	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {clusters: map[string]eks.Cluster{"a": {Name: "a", Version: "1.31"}}},
		"eu-west-1": {clusters: map[string]eks.Cluster{"b": {Name: "b", Version: "1.31"}}},
	}

	o := New(Options{
		Provider:   &fakeProvider{},
		Identities: cache,
		Sources:    sourcesByRegion(perRegion, &fakeNodeSource{}),
	})
	summary, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1", "eu-west-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, int32(1), counter.stsCalls.Load(), "one identity lookup per account, not per region")
	for _, r := range records {
		assert.Equal(t, "prod-main", r.AccountName)
	}
}

func TestRun_ComplianceSpansUnits(t *testing.T) {
	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {clusters: map[string]eks.Cluster{"new": {Name: "new", Version: "1.31"}}},
		"eu-west-1": {clusters: map[string]eks.Cluster{"old": {Name: "old", Version: "1.27"}}},
	}

	o := New(Options{
		Provider:   &fakeProvider{},
		Identities: awsauth.NewIdentityCacheWithFactory((&countingIdentity{}).factory),
		Sources:    sourcesByRegion(perRegion, &fakeNodeSource{}),
	})
	_, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1", "eu-west-1"}},
	})

	require.NoError(t, err)
	byCluster := make(map[string]string)
	for _, r := range records {
		byCluster[r.ClusterName] = r.Compliance
	}
	assert.Equal(t, "1", byCluster["new"])
	assert.Equal(t, "0", byCluster["old"], "baseline must span all units, not just the cluster's own unit")
}

func TestRun_ClusterFailureKeepsSiblings(t *testing.T) {
	now := time.Now()
	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {
			clusters: map[string]eks.Cluster{
				"good": {Name: "good", Version: "1.31"},
				"bad":  {Name: "bad", Version: "1.31"},
			},
			descErr: map[string]error{"bad": errors.New("Throttling")},
		},
	}
	nodes := &fakeNodeSource{
		nodes: map[string][]ec2.Instance{
			"good": {{InstanceID: "i-1", State: "running", ImageID: "ami-a", LaunchTime: now}},
		},
	}

	o := New(Options{
		Provider:   &fakeProvider{},
		Identities: awsauth.NewIdentityCacheWithFactory((&countingIdentity{}).factory),
		Sources:    sourcesByRegion(perRegion, nodes),
	})
	summary, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.True(t, summary.Partial())
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].ClusterName)
}

func TestRun_NoClusters(t *testing.T) {
	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {clusters: map[string]eks.Cluster{}},
	}

	o := New(Options{
		Provider:   &fakeProvider{},
		Identities: awsauth.NewIdentityCacheWithFactory((&countingIdentity{}).factory),
		Sources:    sourcesByRegion(perRegion, &fakeNodeSource{}),
	})
	summary, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.False(t, summary.Partial())
	assert.Empty(t, records)
}

func TestRun_ReadinessProbePerCluster(t *testing.T) {
	now := time.Now()
	probe := &fakeProbe{}
	perRegion := map[string]*fakeClusterSource{
		"us-east-1": {clusters: map[string]eks.Cluster{"c": {Name: "c", Version: "1.31"}}},
	}
	nodes := &fakeNodeSource{
		nodes: map[string][]ec2.Instance{
			"c": {{InstanceID: "i-1", State: "running", ImageID: "ami-a", LaunchTime: now}},
		},
	}

	o := New(Options{
		Provider:   &fakeProvider{},
		Identities: awsauth.NewIdentityCacheWithFactory((&countingIdentity{}).factory),
		Sources:    sourcesByRegion(perRegion, nodes),
		Probe:      probe,
	})
	_, records, err := o.Run(context.Background(), []inventory.AccountTarget{
		{AccountID: "111122223333", RoleName: "Role", Regions: []string{"us-east-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), probe.calls.Load())
	require.Len(t, records, 1)
	assert.Equal(t, "Ready", records[0].Readiness)
}
