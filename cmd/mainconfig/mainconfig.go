package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	appconfig "github.com/wolfman30/kb-chat-portal/internal/config"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	"github.com/wolfman30/kb-chat-portal/internal/observability/metrics"
	"github.com/wolfman30/kb-chat-portal/internal/render"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same credentials and endpoint-override wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = endpointOverride(endpoint, cfg.AWSRegion)
	}

	return awsCfg, nil
}

// endpointOverride points the Bedrock agent runtime at a local stand-in.
func endpointOverride(endpoint, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(
		func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
			if service != bedrockagentruntime.ServiceID {
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
			return aws.Endpoint{
				URL:           endpoint,
				PartitionID:   "aws",
				SigningRegion: region,
			}, nil
		},
	)
}

// NewKnowledgeBaseClient builds the RetrieveAndGenerate client for the
// configured knowledge base and model.
func NewKnowledgeBaseClient(awsCfg aws.Config, cfg *appconfig.Config) *conversation.BedrockKnowledgeBaseClient {
	return conversation.NewBedrockKnowledgeBaseClient(
		bedrockagentruntime.NewFromConfig(awsCfg),
		cfg.KnowledgeBaseID,
		conversation.ModelARN(cfg.AWSRegion, cfg.BedrockModelID),
	)
}

// ServiceOptions maps configuration onto conversation service options.
func ServiceOptions(cfg *appconfig.Config, m *metrics.ChatMetrics) []conversation.ServiceOption {
	opts := []conversation.ServiceOption{
		conversation.WithFallbackMessage(cfg.FallbackMessage),
		conversation.WithLexer(render.Lexer{FenceLanguage: cfg.FenceLanguageHints}),
	}
	if m != nil {
		opts = append(opts, conversation.WithMetrics(m))
	}
	return opts
}
