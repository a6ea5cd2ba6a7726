// Package ssm resolves the latest recommended EKS-optimized machine image
// per cluster version and OS family, from the public SSM parameters AWS
// publishes for exactly this purpose.
package ssm

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/patchops/eks-inventory/internal/logging"
)

// OS paths under /aws/service/eks/optimized-ami/<version>/.
const (
	PathAmazonLinux2    = "amazon-linux-2/x86_64/standard"
	PathAmazonLinux2023 = "amazon-linux-2023/x86_64/standard"
	PathBottlerocket    = "bottlerocket/x86_64/standard"
	PathUbuntu          = "ubuntu/x86_64/standard"
)

// OSPaths lists every family the analyzer knows how to resolve.
var OSPaths = []string{
	PathAmazonLinux2,
	PathAmazonLinux2023,
	PathBottlerocket,
	PathUbuntu,
}

// PathForOSFamily maps an OS family label (as detected from an AMI
// description) to its SSM path. The second return is false for Unknown.
func PathForOSFamily(label string) (string, bool) {
	switch label {
	case "Amazon Linux 2":
		return PathAmazonLinux2, true
	case "Amazon Linux 2023":
		return PathAmazonLinux2023, true
	case "Bottlerocket":
		return PathBottlerocket, true
	case "Ubuntu":
		return PathUbuntu, true
	default:
		return "", false
	}
}

// RecommendedImage is the latest recommended AMI for one version/OS pair.
// PublishedAt comes from the SSM parameter's last modification, which tracks
// when AWS rolled the recommendation.
type RecommendedImage struct {
	ImageID     string
	PublishedAt time.Time
}

type SSMAPI interface {
	GetParameter(ctx context.Context, params *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
}

type Client struct {
	api SSMAPI
}

func NewClient(api SSMAPI) *Client {
	return &Client{api: api}
}

func NewFromConfig(cfg aws.Config) *Client {
	return NewClient(awsssm.NewFromConfig(cfg))
}

// LatestImages resolves the recommended AMI for each known OS path at the
// given cluster version, keyed by OS path. Paths with no published parameter
// (older versions don't have all families) are skipped, not errors.
func (c *Client) LatestImages(ctx context.Context, version string) map[string]RecommendedImage {
	images := make(map[string]RecommendedImage)

	for _, osPath := range OSPaths {
		name := fmt.Sprintf("/aws/service/eks/optimized-ami/%s/%s/recommended/image_id", version, osPath)
		out, err := c.api.GetParameter(ctx, &awsssm.GetParameterInput{
			Name: aws.String(name),
		})
		if err != nil {
			logging.Debug("no recommended AMI at %s: %v", name, err)
			continue
		}

		var published time.Time
		if out.Parameter.LastModifiedDate != nil {
			published = *out.Parameter.LastModifiedDate
		}
		images[osPath] = RecommendedImage{
			ImageID:     aws.ToString(out.Parameter.Value),
			PublishedAt: published,
		}
	}

	return images
}
