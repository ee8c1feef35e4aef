package aws

import (
	"context"

	"checkin.engine/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog/log"
)

// NewAWSConfig creates a new AWS configuration, pointing to LocalStack in local development.
func NewAWSConfig(ctx context.Context, appConfig config.Config) (aws.Config, error) {
	if appConfig.IsLocalDev {
		log.Info().Str("endpoint", appConfig.AWSEndpoint).Msg("Local development mode detected. Routing AWS calls to LocalStack.")

		opts := []func(*awsConfig.LoadOptions) error{
			awsConfig.WithRegion(appConfig.AWSRegion),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		}
		if appConfig.AWSEndpoint != "" {
			opts = append(opts, awsConfig.WithBaseEndpoint(appConfig.AWSEndpoint))
		}
		return awsConfig.LoadDefaultConfig(ctx, opts...)
	}

	// Outside local development the standard credential chain applies (e.g. IAM role for service accounts).
	log.Info().Msg("Production mode detected. Using standard AWS credential chain.")
	return awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(appConfig.AWSRegion))
}
