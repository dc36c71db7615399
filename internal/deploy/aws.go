package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ManifestKey is the bucket object recording the hash of every deployed
// file. It is excluded from diffs and never deleted by a sync.
const ManifestKey = ".bengal-manifest.json"

// s3API is the subset of the S3 SDK client used by AWSS3Client.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// AWSS3Client implements S3Client against the AWS SDK v2.
type AWSS3Client struct {
	client s3API
	bucket string
}

// NewAWSS3Client wraps an SDK client for one bucket.
func NewAWSS3Client(client s3API, bucket string) *AWSS3Client {
	return &AWSS3Client{client: client, bucket: bucket}
}

// PutObject uploads an object with its content type, cache policy, and hash.
// The hash also lands in object metadata so a bucket can be audited without
// the manifest.
func (c *AWSS3Client) PutObject(ctx context.Context, key string, body io.Reader, contentType, cacheControl, sha256Hash string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		Metadata: map[string]string{
			"sha256": sha256Hash,
		},
	})
	if err != nil {
		return fmt.Errorf("s3 PutObject %q: %w", key, err)
	}
	return nil
}

// DeleteObject removes an object from the bucket.
func (c *AWSS3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 DeleteObject %q: %w", key, err)
	}
	return nil
}

// RemoteState lists the bucket and annotates each key with the hash the
// deploy manifest recorded for it. Keys the manifest does not cover map to
// "", which forces a re-upload that repairs the entry.
func (c *AWSS3Client) RemoteState(ctx context.Context) (map[string]string, error) {
	manifest, err := c.getManifest(ctx)
	if err != nil {
		return nil, err
	}

	state := make(map[string]string)
	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	for {
		out, err := c.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3 ListObjectsV2: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == ManifestKey {
				continue
			}
			state[key] = manifest[key]
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return state, nil
}

// PutManifest replaces the deploy manifest object.
func (c *AWSS3Client) PutManifest(ctx context.Context, hashes map[string]string) error {
	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(ManifestKey),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return fmt.Errorf("s3 PutObject %q: %w", ManifestKey, err)
	}
	return nil
}

// getManifest fetches and decodes the manifest. A missing or unreadable
// manifest yields an empty map, which downgrades the sync to a full
// re-upload instead of failing it.
func (c *AWSS3Client) getManifest(ctx context.Context) (map[string]string, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ManifestKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("s3 GetObject %q: %w", ManifestKey, err)
	}
	defer out.Body.Close()

	manifest := make(map[string]string)
	if err := json.NewDecoder(out.Body).Decode(&manifest); err != nil {
		return map[string]string{}, nil
	}
	return manifest, nil
}

// cfInvalidationAPI is the subset of the CloudFront SDK client used by
// AWSCloudFrontClient.
type cfInvalidationAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// AWSCloudFrontClient implements CloudFrontClient against the AWS SDK v2.
type AWSCloudFrontClient struct {
	client cfInvalidationAPI
}

// NewAWSCloudFrontClient wraps an SDK CloudFront client.
func NewAWSCloudFrontClient(client cfInvalidationAPI) *AWSCloudFrontClient {
	return &AWSCloudFrontClient{client: client}
}

// CreateInvalidation invalidates the given paths on a distribution.
func (c *AWSCloudFrontClient) CreateInvalidation(ctx context.Context, distributionID string, paths []string) error {
	qty := int32(len(paths))
	callerRef := fmt.Sprintf("bengal-%d", time.Now().UnixNano())

	_, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(callerRef),
			Paths: &cftypes.Paths{
				Quantity: &qty,
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cloudfront CreateInvalidation: %w", err)
	}
	return nil
}
