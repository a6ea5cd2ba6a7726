// Package eks is the cluster data source: it enumerates EKS clusters in one
// account/region and resolves the control-plane details the correlator and
// the readiness probe need.
package eks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
)

type EKSAPI interface {
	ListClusters(ctx context.Context, params *awseks.ListClustersInput, optFns ...func(*awseks.Options)) (*awseks.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
}

type Client struct {
	api EKSAPI
}

func NewClient(api EKSAPI) *Client {
	return &Client{api: api}
}

// NewFromConfig builds the client from a scoped AWS config.
func NewFromConfig(cfg aws.Config) *Client {
	return NewClient(awseks.NewFromConfig(cfg))
}

// ListClusters returns the names of all clusters in the region.
func (c *Client) ListClusters(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		out, err := c.api.ListClusters(ctx, &awseks.ListClustersInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("ListClusters: %w", err)
		}

		names = append(names, out.Clusters...)

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return names, nil
}

// DescribeCluster resolves one cluster's version and the connection details
// used by the readiness probe.
func (c *Client) DescribeCluster(ctx context.Context, name string) (Cluster, error) {
	out, err := c.api.DescribeCluster(ctx, &awseks.DescribeClusterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return Cluster{}, fmt.Errorf("DescribeCluster(%s): %w", name, err)
	}

	cl := out.Cluster
	if cl == nil {
		return Cluster{}, fmt.Errorf("DescribeCluster(%s): empty response", name)
	}

	var certAuthority string
	if cl.CertificateAuthority != nil {
		certAuthority = aws.ToString(cl.CertificateAuthority.Data)
	}

	return Cluster{
		Name:          aws.ToString(cl.Name),
		Status:        string(cl.Status),
		Version:       aws.ToString(cl.Version),
		Endpoint:      aws.ToString(cl.Endpoint),
		CertAuthority: certAuthority,
	}, nil
}
