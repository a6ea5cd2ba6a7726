package kube

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// tokenPrefix is the required prefix for EKS bearer tokens.
	tokenPrefix = "k8s-aws-v1."

	// presignURLExpiry is the number of seconds the presigned URL is valid.
	presignURLExpiry = "60"

	// clusterIDHeader identifies the cluster for token auth.
	clusterIDHeader = "x-k8s-aws-id"
)

// bearerToken creates a presigned STS GetCallerIdentity URL and encodes it
// as an EKS bearer token, the same mechanism as `aws eks get-token`. The
// token is scoped to one cluster and never persisted; a probe lives far
// shorter than the token's validity, so no refresh machinery is needed.
//
// Uses a custom presigner to inject headers directly into the HTTP request
// before signing, working around aws-sdk-go-v2#1922 where
// smithyhttp.AddHeaderValue doesn't produce valid signatures for EKS token
// auth.
func bearerToken(ctx context.Context, cfg aws.Config, clusterName string) (string, error) {
	presignClient := sts.NewPresignClient(sts.NewFromConfig(cfg))

	headers := map[string]string{
		clusterIDHeader: clusterName,
		"X-Amz-Expires": presignURLExpiry,
	}

	presigned, err := presignClient.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{},
		func(po *sts.PresignOptions) {
			po.Presigner = &eksPresigner{base: po.Presigner, headers: headers}
		},
	)
	if err != nil {
		return "", fmt.Errorf("presigning GetCallerIdentity: %w", err)
	}

	return tokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(presigned.URL)), nil
}

// eksPresigner wraps sts.HTTPPresignerV4 to inject the x-k8s-aws-id and
// X-Amz-Expires headers into the request before signature computation.
type eksPresigner struct {
	base    sts.HTTPPresignerV4
	headers map[string]string
}

func (p *eksPresigner) PresignHTTP(
	ctx context.Context, credentials aws.Credentials, r *http.Request,
	payloadHash string, service string, region string, signingTime time.Time,
	optFns ...func(*v4.SignerOptions),
) (string, http.Header, error) {
	for k, v := range p.headers {
		r.Header.Set(k, v)
	}
	return p.base.PresignHTTP(ctx, credentials, r, payloadHash, service, region, signingTime, optFns...)
}
