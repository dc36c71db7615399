package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// urlRewriteFunctionName identifies the managed viewer-request function.
const urlRewriteFunctionName = "bengal-url-rewrite"

// URLRewriteFunctionCode is the CloudFront Function (cloudfront-js-2.0)
// source that maps clean URLs onto the index.html objects the generator
// writes.
const URLRewriteFunctionCode = `function handler(event) {
    var request = event.request;
    var uri = request.uri;

    // Has a file extension - pass through
    if (uri.match(/\.[a-zA-Z0-9]+$/)) {
        return request;
    }
    // Trailing slash - append index.html
    if (uri.endsWith('/')) {
        request.uri = uri + 'index.html';
        return request;
    }
    // No extension, no trailing slash - append /index.html
    request.uri = uri + '/index.html';
    return request;
}
`

// cfAPI is the subset of the CloudFront SDK client used by
// AWSCloudFrontFunctionClient.
type cfAPI interface {
	DescribeFunction(ctx context.Context, params *cloudfront.DescribeFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DescribeFunctionOutput, error)
	CreateFunction(ctx context.Context, params *cloudfront.CreateFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateFunctionOutput, error)
	UpdateFunction(ctx context.Context, params *cloudfront.UpdateFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateFunctionOutput, error)
	PublishFunction(ctx context.Context, params *cloudfront.PublishFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.PublishFunctionOutput, error)
	GetDistributionConfig(ctx context.Context, params *cloudfront.GetDistributionConfigInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error)
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
}

// AWSCloudFrontFunctionClient implements CloudFrontFunctionClient against
// the AWS SDK v2.
type AWSCloudFrontFunctionClient struct {
	client cfAPI
}

// NewAWSCloudFrontFunctionClient wraps an SDK CloudFront client.
func NewAWSCloudFrontFunctionClient(client cfAPI) *AWSCloudFrontFunctionClient {
	return &AWSCloudFrontFunctionClient{client: client}
}

// EnsureURLRewriteFunction creates or updates the function, publishes it to
// LIVE, and attaches it to the distribution's default cache behavior as the
// viewer-request function. Every step is idempotent, so re-running with the
// same inputs is safe. Returns the function ARN.
func (c *AWSCloudFrontFunctionClient) EnsureURLRewriteFunction(
	ctx context.Context, distributionID, functionName, functionCode string,
) (string, error) {
	functionARN, etag, err := c.upsertFunction(ctx, functionName, functionCode)
	if err != nil {
		return "", fmt.Errorf("ensuring function %q: %w", functionName, err)
	}

	if _, err := c.client.PublishFunction(ctx, &cloudfront.PublishFunctionInput{
		Name:    aws.String(functionName),
		IfMatch: aws.String(etag),
	}); err != nil {
		return "", fmt.Errorf("publishing function %q: %w", functionName, err)
	}

	if err := c.associateFunction(ctx, distributionID, functionARN); err != nil {
		return "", fmt.Errorf("associating function with distribution %q: %w", distributionID, err)
	}
	return functionARN, nil
}

// upsertFunction creates the function if it does not exist, otherwise
// updates its code in place. Returns the ARN and the ETag needed to publish.
func (c *AWSCloudFrontFunctionClient) upsertFunction(
	ctx context.Context, name, code string,
) (arn string, etag string, err error) {
	funcConfig := &cftypes.FunctionConfig{
		Comment: aws.String("Bengal URL rewrite: appends index.html for clean URLs"),
		Runtime: cftypes.FunctionRuntimeCloudfrontJs20,
	}

	descOut, descErr := c.client.DescribeFunction(ctx, &cloudfront.DescribeFunctionInput{
		Name:  aws.String(name),
		Stage: cftypes.FunctionStageDevelopment,
	})

	var notFound *cftypes.NoSuchFunctionExists
	switch {
	case descErr == nil:
		updateOut, err := c.client.UpdateFunction(ctx, &cloudfront.UpdateFunctionInput{
			Name:           aws.String(name),
			FunctionCode:   []byte(code),
			FunctionConfig: funcConfig,
			IfMatch:        descOut.ETag,
		})
		if err != nil {
			return "", "", fmt.Errorf("updating function: %w", err)
		}
		return aws.ToString(updateOut.FunctionSummary.FunctionMetadata.FunctionARN),
			aws.ToString(updateOut.ETag), nil

	case errors.As(descErr, &notFound):
		createOut, err := c.client.CreateFunction(ctx, &cloudfront.CreateFunctionInput{
			Name:           aws.String(name),
			FunctionCode:   []byte(code),
			FunctionConfig: funcConfig,
		})
		if err != nil {
			return "", "", fmt.Errorf("creating function: %w", err)
		}
		return aws.ToString(createOut.FunctionSummary.FunctionMetadata.FunctionARN),
			aws.ToString(createOut.ETag), nil

	default:
		return "", "", fmt.Errorf("describing function: %w", descErr)
	}
}

// associateFunction attaches the function to the distribution's default
// cache behavior as its viewer-request function. An existing viewer-request
// association is replaced, not stacked; associations for other event types
// are preserved.
func (c *AWSCloudFrontFunctionClient) associateFunction(
	ctx context.Context, distributionID, functionARN string,
) error {
	getOut, err := c.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		return fmt.Errorf("getting distribution config: %w", err)
	}

	distConfig := getOut.DistributionConfig
	behavior := distConfig.DefaultCacheBehavior

	var kept []cftypes.FunctionAssociation
	if behavior.FunctionAssociations != nil {
		for _, assoc := range behavior.FunctionAssociations.Items {
			if assoc.EventType != cftypes.EventTypeViewerRequest {
				kept = append(kept, assoc)
				continue
			}
			if aws.ToString(assoc.FunctionARN) == functionARN {
				return nil
			}
		}
	}
	kept = append(kept, cftypes.FunctionAssociation{
		EventType:   cftypes.EventTypeViewerRequest,
		FunctionARN: aws.String(functionARN),
	})

	qty := int32(len(kept))
	behavior.FunctionAssociations = &cftypes.FunctionAssociations{
		Quantity: &qty,
		Items:    kept,
	}

	if _, err := c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(distributionID),
		DistributionConfig: distConfig,
		IfMatch:            getOut.ETag,
	}); err != nil {
		return fmt.Errorf("updating distribution: %w", err)
	}
	return nil
}
