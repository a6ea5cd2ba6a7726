// Package s3 uploads the finished report to an object-store destination.
// Upload failures never invalidate the local report; callers log and move on.
package s3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

type Client struct {
	api S3API
}

func NewClient(api S3API) *Client {
	return &Client{api: api}
}

func NewFromConfig(cfg aws.Config) *Client {
	return NewClient(awss3.NewFromConfig(cfg))
}

// TimestampedKey builds the object key for a report: the local file name
// with an upload timestamp spliced in before the extension, under prefix.
func TimestampedKey(prefix, filename string, now time.Time) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filepath.Base(filename), ext)
	name := fmt.Sprintf("%s_%s%s", stem, now.Format("02Jan2006_03_04PM"), ext)
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

// Upload stores the local file under a timestamped key and returns the
// s3:// URL it was written to.
func (c *Client) Upload(ctx context.Context, bucket, prefix, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening report %s: %w", localPath, err)
	}
	defer f.Close()

	key := TimestampedKey(prefix, localPath, time.Now())
	_, err = c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("PutObject(s3://%s/%s): %w", bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
