// Package awsauth produces scoped AWS configurations for account/role/region
// targets and memoizes identity lookups so each account is verified at most
// once per run.
package awsauth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// assumeRoleDuration bounds temporary credentials to one hour.
	assumeRoleDuration = int32(3600)

	retryMaxAttempts = 3
)

// AuthError reports a failure to authenticate one account/role/region unit.
type AuthError struct {
	Account string
	Role    string
	Region  string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticating account %s role %s in %s: %v", e.Account, e.Role, e.Region, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Provider yields an authenticated, region-bound configuration for one
// account/role/region target. Implementations must not make remote calls
// beyond what credential acquisition strictly requires.
type Provider interface {
	Acquire(ctx context.Context, accountID, role, region string) (aws.Config, error)
}

// BaseVerifier is implemented by providers that depend on a base identity
// whose failure is fatal for the whole run.
type BaseVerifier interface {
	VerifyBase(ctx context.Context) (Identity, error)
}

// ProfileProvider resolves pre-configured shared-config profiles. Profiles
// are named after the account id, matching the layout the SSO setup writes
// to ~/.aws/config.
type ProfileProvider struct{}

func NewProfileProvider() *ProfileProvider { return &ProfileProvider{} }

func (p *ProfileProvider) Acquire(ctx context.Context, accountID, role, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(accountID),
		config.WithRegion(region),
		config.WithRetryMaxAttempts(retryMaxAttempts),
	)
	if err != nil {
		return aws.Config{}, &AuthError{Account: accountID, Role: role, Region: region, Err: err}
	}
	return cfg, nil
}

// STSAssumeAPI is the STS surface the assume-role strategy needs.
type STSAssumeAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AssumeRoleProvider starts from an already-authenticated base identity and
// requests temporary credentials for each target account's role.
type AssumeRoleProvider struct {
	api STSAssumeAPI
}

// NewAssumeRoleProvider builds the provider from the base credential chain,
// optionally scoped to a named profile.
func NewAssumeRoleProvider(ctx context.Context, baseProfile string) (*AssumeRoleProvider, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(retryMaxAttempts),
	}
	if baseProfile != "" {
		opts = append(opts, config.WithSharedConfigProfile(baseProfile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading base AWS config: %w", err)
	}
	return &AssumeRoleProvider{api: sts.NewFromConfig(cfg)}, nil
}

// NewAssumeRoleProviderWithClient injects the STS client. Used by tests.
func NewAssumeRoleProviderWithClient(api STSAssumeAPI) *AssumeRoleProvider {
	return &AssumeRoleProvider{api: api}
}

// VerifyBase confirms the base identity can authenticate at all. A failure
// here aborts the whole run.
func (p *AssumeRoleProvider) VerifyBase(ctx context.Context) (Identity, error) {
	out, err := p.api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("verifying base identity: %w", err)
	}
	return Identity{
		AccountID: aws.ToString(out.Account),
		UserID:    aws.ToString(out.UserId),
		ARN:       aws.ToString(out.Arn),
	}, nil
}

func (p *AssumeRoleProvider) Acquire(ctx context.Context, accountID, role, region string) (aws.Config, error) {
	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, role)
	sessionName := "eks-inventory-" + accountID
	duration := assumeRoleDuration

	out, err := p.api.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: &duration,
	})
	if err != nil {
		return aws.Config{}, &AuthError{Account: accountID, Role: role, Region: region, Err: err}
	}

	creds := out.Credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryMaxAttempts(retryMaxAttempts),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			aws.ToString(creds.AccessKeyId),
			aws.ToString(creds.SecretAccessKey),
			aws.ToString(creds.SessionToken),
		)),
	)
	if err != nil {
		return aws.Config{}, &AuthError{Account: accountID, Role: role, Region: region, Err: err}
	}
	return cfg, nil
}
