// Package ec2 is the node data source: it resolves the compute instances
// backing a cluster and the machine images they were launched from.
package ec2

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type EC2API interface {
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error)
}

type Client struct {
	api EC2API
}

func NewClient(api EC2API) *Client {
	return &Client{api: api}
}

func NewFromConfig(cfg aws.Config) *Client {
	return NewClient(awsec2.NewFromConfig(cfg))
}

// ClusterNodes lists the running instances tagged as members of the cluster.
// Both "owned" and "shared" ownership values count; self-managed node groups
// use the latter.
func (c *Client) ClusterNodes(ctx context.Context, clusterName string) ([]Instance, error) {
	filters := []types.Filter{
		{
			Name:   aws.String("instance-state-name"),
			Values: []string{"running"},
		},
		{
			Name:   aws.String("tag:kubernetes.io/cluster/" + clusterName),
			Values: []string{"owned", "shared"},
		},
	}

	var instances []Instance
	var nextToken *string

	for {
		out, err := c.api.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
			Filters:   filters,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances(%s): %w", clusterName, err)
		}

		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				var launchTime time.Time
				if inst.LaunchTime != nil {
					launchTime = *inst.LaunchTime
				}
				var state string
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				instances = append(instances, Instance{
					InstanceID: aws.ToString(inst.InstanceId),
					Type:       string(inst.InstanceType),
					State:      state,
					ImageID:    aws.ToString(inst.ImageId),
					LaunchTime: launchTime,
				})
			}
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return instances, nil
}

// DescribeImages resolves publication date and description for a set of AMIs,
// keyed by image id. Images the caller can no longer see (deregistered or
// private to another account) are simply absent from the result.
func (c *Client) DescribeImages(ctx context.Context, imageIDs []string) (map[string]Image, error) {
	if len(imageIDs) == 0 {
		return map[string]Image{}, nil
	}

	out, err := c.api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		ImageIds: imageIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeImages: %w", err)
	}

	images := make(map[string]Image, len(out.Images))
	for _, img := range out.Images {
		id := aws.ToString(img.ImageId)
		creation, _ := time.Parse(time.RFC3339, aws.ToString(img.CreationDate))
		images[id] = Image{
			ImageID:      id,
			CreationDate: creation,
			Description:  aws.ToString(img.Description),
		}
	}
	return images, nil
}
