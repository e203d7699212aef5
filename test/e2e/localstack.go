package e2e

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// localstackEndpoint returns LOCALSTACK_ENDPOINT or the default local port.
func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// newLocalstackClient builds a path-style S3 client with the static
// credentials Localstack accepts.
func newLocalstackClient(t *testing.T) *s3.Client {
	t.Helper()

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(localstackEndpoint())
		o.UsePathStyle = true
	})
}

// localstackAvailable lists buckets as a health check.
func localstackAvailable(client *s3.Client) bool {
	_, err := client.ListBuckets(context.Background(), &s3.ListBucketsInput{})
	return err == nil
}

// setupS3Config creates a bucket for config and points it at Localstack.
// The bucket is emptied and removed when t finishes.
func setupS3Config(t *testing.T, client *s3.Client, config *TestConfig) {
	t.Helper()
	ctx := context.Background()

	bucket := aws.String("filesrv-e2e-" + strings.ToLower(config.Name))
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: bucket}); err != nil {
		t.Fatalf("Failed to create S3 bucket %s: %v", *bucket, err)
	}

	t.Cleanup(func() {
		pages := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: bucket})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: bucket})
	})

	config.s3Endpoint = localstackEndpoint()
	config.s3Bucket = *bucket
}
