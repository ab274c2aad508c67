package invoker

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/oriys/meridian/internal/fault"
)

// CredentialResolver resolves the identity used to authenticate backend
// invocations. Resolution happens once, at the first call that needs
// credentials rather than at construction, and the outcome is cached
// for the life of the owning invoker. A configured role ARN selects an
// assumed-role session named after the invoker instance; otherwise the
// standard discovery chain applies (environment, shared profile,
// ambient platform identity).
type CredentialResolver struct {
	roleARN     string
	sessionName string
	loadConfig  func(context.Context) (aws.Config, error)

	once     sync.Once
	provider aws.CredentialsProvider
	err      error
}

// NewCredentialResolver returns an unresolved resolver. sessionName
// must be unique per invoker instance so concurrently assumed sessions
// stay distinguishable.
func NewCredentialResolver(roleARN, sessionName string) *CredentialResolver {
	return &CredentialResolver{
		roleARN:     roleARN,
		sessionName: sessionName,
		loadConfig:  defaultLoadConfig,
	}
}

func defaultLoadConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Retrieve implements aws.CredentialsProvider.
func (r *CredentialResolver) Retrieve(ctx context.Context) (aws.Credentials, error) {
	r.once.Do(func() { r.resolve(ctx) })
	if r.err != nil {
		return aws.Credentials{}, r.err
	}
	return r.provider.Retrieve(ctx)
}

func (r *CredentialResolver) resolve(ctx context.Context) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		r.err = fault.Config(err, "resolve backend credentials")
		return
	}
	if r.roleARN == "" {
		r.provider = cfg.Credentials
		return
	}
	assume := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), r.roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = r.sessionName
	})
	r.provider = aws.NewCredentialsCache(assume)
}
