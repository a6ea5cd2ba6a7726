package awsauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/patchops/eks-inventory/internal/logging"
)

// Identity is a verified caller identity plus the account's friendly name.
type Identity struct {
	AccountID   string
	UserID      string
	ARN         string
	AccountName string
}

type STSIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IAMAliasAPI interface {
	ListAccountAliases(ctx context.Context, params *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error)
}

type OrgAccountAPI interface {
	DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error)
}

// ClientFactory builds the lookup clients for a scoped config. Injected so
// tests can count remote calls.
type ClientFactory func(cfg aws.Config) (STSIdentityAPI, IAMAliasAPI, OrgAccountAPI)

func defaultClientFactory(cfg aws.Config) (STSIdentityAPI, IAMAliasAPI, OrgAccountAPI) {
	return sts.NewFromConfig(cfg), iam.NewFromConfig(cfg), organizations.NewFromConfig(cfg)
}

// IdentityCache memoizes identity and account-name resolution per account.
// A cache hit performs zero remote calls; across a multi-region run this is
// where most of the API-call savings come from. Writes are idempotent: all
// writers for a key compute the same value, so last-writer-wins is safe
// under concurrent region processing.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[string]Identity
	factory ClientFactory
}

func NewIdentityCache() *IdentityCache {
	return &IdentityCache{
		entries: make(map[string]Identity),
		factory: defaultClientFactory,
	}
}

// NewIdentityCacheWithFactory injects the client factory. Used by tests.
func NewIdentityCacheWithFactory(factory ClientFactory) *IdentityCache {
	return &IdentityCache{
		entries: make(map[string]Identity),
		factory: factory,
	}
}

// Resolve returns the cached identity for accountID, verifying it remotely
// only on the first call per account.
func (c *IdentityCache) Resolve(ctx context.Context, accountID string, cfg aws.Config) (Identity, error) {
	c.mu.RLock()
	id, ok := c.entries[accountID]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	stsAPI, iamAPI, orgAPI := c.factory(cfg)

	out, err := stsAPI.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("GetCallerIdentity for account %s: %w", accountID, err)
	}

	id = Identity{
		AccountID:   aws.ToString(out.Account),
		UserID:      aws.ToString(out.UserId),
		ARN:         aws.ToString(out.Arn),
		AccountName: c.lookupName(ctx, accountID, iamAPI, orgAPI),
	}

	c.mu.Lock()
	c.entries[accountID] = id
	c.mu.Unlock()
	return id, nil
}

// lookupName resolves a display name for the account: IAM account alias
// first, then the Organizations account description, then the raw id.
// Lookup failures are expected for restricted roles and only logged at
// debug level.
func (c *IdentityCache) lookupName(ctx context.Context, accountID string, iamAPI IAMAliasAPI, orgAPI OrgAccountAPI) string {
	aliases, err := iamAPI.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
	if err == nil && len(aliases.AccountAliases) > 0 {
		return aliases.AccountAliases[0]
	}
	if err != nil {
		logging.Debug("account %s: alias lookup unavailable: %v", accountID, err)
	}

	acct, err := orgAPI.DescribeAccount(ctx, &organizations.DescribeAccountInput{
		AccountId: aws.String(accountID),
	})
	if err == nil && acct.Account != nil && acct.Account.Name != nil {
		return aws.ToString(acct.Account.Name)
	}
	if err != nil {
		logging.Debug("account %s: organizations lookup unavailable: %v", accountID, err)
	}

	return accountID
}

// Len reports the number of cached accounts.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
