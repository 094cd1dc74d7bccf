package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cubbyhq/cubby/app/models"
)

const verifyTimeout = 15 * time.Second

// Client wraps an S3-compatible client built from a saved credential
// profile. The desktop app talks to buckets directly; the API only uses
// this client to verify that a profile works.
type Client struct {
	s3Client *s3.Client
	account  *models.StorageAccount
}

// NewClient builds an S3 client for the given profile. Custom endpoints
// (R2, MinIO, B2) get path-style addressing when the profile asks for it.
func NewClient(ctx context.Context, account *models.StorageAccount, secretKey string) (*Client, error) {
	region := account.Region
	if region == "" {
		region = "auto"
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			account.AccessKeyID,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if account.EndpointURL != "" {
			o.BaseEndpoint = aws.String(account.EndpointURL)
			o.UsePathStyle = account.ForcePathStyle
			o.UseAccelerate = false
		}
	})

	return &Client{
		s3Client: s3Client,
		account:  account,
	}, nil
}

// Verify probes the remote end with the cheapest call that proves the
// credentials work: HeadBucket when the profile names a bucket, ListBuckets
// otherwise.
func (c *Client) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if c.account.Bucket != "" {
		_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(c.account.Bucket),
		})
		if err != nil {
			return fmt.Errorf("bucket %s not reachable: %w", c.account.Bucket, err)
		}
		return nil
	}

	_, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("credentials rejected: %w", err)
	}
	return nil
}
