package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/windoze95/groceryplan-api/internal/config"
)

// newS3Client creates a new S3 client from the app config.
// When AWS access key and secret are provided, static credentials are used;
// otherwise the default credential chain is preserved (IAM role, instance
// profile, etc.).
func newS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.EnvVars.AWSRegion),
	}

	if cfg.EnvVars.AWSAccessKeyID != "" && cfg.EnvVars.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.EnvVars.AWSAccessKeyID,
			cfg.EnvVars.AWSSecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// S3-compatible stores such as MinIO need path-style addressing.
		if cfg.EnvVars.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.EnvVars.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// PageArchiver stores the raw HTML of pages that produced a corpus recipe.
type PageArchiver struct {
	bucket   string
	uploader *manager.Uploader
}

// NewPageArchiver builds an archiver for the configured bucket.
func NewPageArchiver(ctx context.Context, cfg *config.Config) (*PageArchiver, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PageArchiver{
		bucket:   cfg.EnvVars.S3Bucket,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchivePage uploads html under the recipe's key and returns its location.
func (a *PageArchiver) ArchivePage(ctx context.Context, recipeID uint, sourceURL string, html []byte) (string, error) {
	result, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(PageKey(recipeID)),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
		Metadata:    map[string]string{"source-url": sourceURL},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return result.Location, nil
}

// PageKey generates the S3 key for a recipe's archived source page.
func PageKey(recipeID uint) string {
	return fmt.Sprintf("recipes/%d/source/page.html", recipeID)
}
