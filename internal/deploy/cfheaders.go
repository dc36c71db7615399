package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// responseHeadersPolicyName identifies the managed response headers policy.
const responseHeadersPolicyName = "bengal-security-headers"

// ResponseHeadersConfig holds the security header values applied via a
// CloudFront response headers policy.
type ResponseHeadersConfig struct {
	CSP                 string // full Content-Security-Policy header value
	HSTSMaxAge          int    // HSTS max-age in seconds
	HSTSSubDomains      bool   // HSTS includeSubDomains directive
	HSTSPreload         bool   // HSTS preload directive
	XContentTypeNosniff bool   // X-Content-Type-Options: nosniff
	XFrameOptions       string // "DENY" or "SAMEORIGIN"
	ReferrerPolicy      string // a valid Referrer-Policy value
}

// DefaultResponseHeaders is the header set applied for production deploys.
// HSTS preload stays off: preload list removal takes months, so opting in
// belongs to the operator, not the tool.
func DefaultResponseHeaders(csp string) ResponseHeadersConfig {
	return ResponseHeadersConfig{
		CSP:                 csp,
		HSTSMaxAge:          63072000,
		HSTSSubDomains:      true,
		XContentTypeNosniff: true,
		XFrameOptions:       "DENY",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
	}
}

// cfHeadersAPI is the subset of the CloudFront SDK client used by
// AWSCloudFrontHeadersPolicyClient.
type cfHeadersAPI interface {
	CreateResponseHeadersPolicy(ctx context.Context, params *cloudfront.CreateResponseHeadersPolicyInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateResponseHeadersPolicyOutput, error)
	GetResponseHeadersPolicy(ctx context.Context, params *cloudfront.GetResponseHeadersPolicyInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetResponseHeadersPolicyOutput, error)
	UpdateResponseHeadersPolicy(ctx context.Context, params *cloudfront.UpdateResponseHeadersPolicyInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateResponseHeadersPolicyOutput, error)
	ListResponseHeadersPolicies(ctx context.Context, params *cloudfront.ListResponseHeadersPoliciesInput, optFns ...func(*cloudfront.Options)) (*cloudfront.ListResponseHeadersPoliciesOutput, error)
	GetDistributionConfig(ctx context.Context, params *cloudfront.GetDistributionConfigInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error)
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
}

// AWSCloudFrontHeadersPolicyClient implements HeadersPolicyClient against
// the AWS SDK v2.
type AWSCloudFrontHeadersPolicyClient struct {
	client cfHeadersAPI
}

// NewAWSCloudFrontHeadersPolicyClient wraps an SDK CloudFront client.
func NewAWSCloudFrontHeadersPolicyClient(client cfHeadersAPI) *AWSCloudFrontHeadersPolicyClient {
	return &AWSCloudFrontHeadersPolicyClient{client: client}
}

// EnsureResponseHeadersPolicy creates or updates the managed policy and
// attaches it to the distribution's default cache behavior. Every step is
// idempotent.
func (c *AWSCloudFrontHeadersPolicyClient) EnsureResponseHeadersPolicy(
	ctx context.Context, distributionID string, cfg ResponseHeadersConfig,
) error {
	policyID, err := c.upsertPolicy(ctx, buildHeadersPolicyConfig(cfg))
	if err != nil {
		return fmt.Errorf("ensuring response headers policy %q: %w", responseHeadersPolicyName, err)
	}
	if err := c.associatePolicy(ctx, distributionID, policyID); err != nil {
		return fmt.Errorf("associating response headers policy with distribution %q: %w", distributionID, err)
	}
	return nil
}

// buildHeadersPolicyConfig translates the header values into the SDK policy
// shape. Empty or zero values leave their header unmanaged.
func buildHeadersPolicyConfig(cfg ResponseHeadersConfig) *cftypes.ResponseHeadersPolicyConfig {
	sh := &cftypes.ResponseHeadersPolicySecurityHeadersConfig{}

	if cfg.CSP != "" {
		sh.ContentSecurityPolicy = &cftypes.ResponseHeadersPolicyContentSecurityPolicy{
			ContentSecurityPolicy: aws.String(cfg.CSP),
			Override:              aws.Bool(true),
		}
	}
	if cfg.HSTSMaxAge > 0 {
		sh.StrictTransportSecurity = &cftypes.ResponseHeadersPolicyStrictTransportSecurity{
			AccessControlMaxAgeSec: aws.Int32(int32(cfg.HSTSMaxAge)),
			IncludeSubdomains:      aws.Bool(cfg.HSTSSubDomains),
			Preload:                aws.Bool(cfg.HSTSPreload),
			Override:               aws.Bool(true),
		}
	}
	if cfg.XContentTypeNosniff {
		sh.ContentTypeOptions = &cftypes.ResponseHeadersPolicyContentTypeOptions{
			Override: aws.Bool(true),
		}
	}
	if cfg.XFrameOptions != "" {
		sh.FrameOptions = &cftypes.ResponseHeadersPolicyFrameOptions{
			FrameOption: cftypes.FrameOptionsList(cfg.XFrameOptions),
			Override:    aws.Bool(true),
		}
	}
	if cfg.ReferrerPolicy != "" {
		sh.ReferrerPolicy = &cftypes.ResponseHeadersPolicyReferrerPolicy{
			ReferrerPolicy: cftypes.ReferrerPolicyList(cfg.ReferrerPolicy),
			Override:       aws.Bool(true),
		}
	}

	return &cftypes.ResponseHeadersPolicyConfig{
		Name:                  aws.String(responseHeadersPolicyName),
		Comment:               aws.String("Bengal security headers: CSP, HSTS, X-Content-Type-Options, X-Frame-Options, Referrer-Policy"),
		SecurityHeadersConfig: sh,
	}
}

// upsertPolicy creates the policy if no policy with the managed name exists,
// otherwise updates it in place. Returns the policy ID.
func (c *AWSCloudFrontHeadersPolicyClient) upsertPolicy(
	ctx context.Context, policyCfg *cftypes.ResponseHeadersPolicyConfig,
) (string, error) {
	existingID, err := c.findPolicyByName(ctx, responseHeadersPolicyName)
	if err != nil {
		return "", fmt.Errorf("looking up policy: %w", err)
	}

	if existingID == "" {
		createOut, err := c.client.CreateResponseHeadersPolicy(ctx,
			&cloudfront.CreateResponseHeadersPolicyInput{
				ResponseHeadersPolicyConfig: policyCfg,
			})
		if err != nil {
			return "", fmt.Errorf("creating policy: %w", err)
		}
		if createOut.ResponseHeadersPolicy == nil || createOut.ResponseHeadersPolicy.Id == nil {
			return "", fmt.Errorf("creating policy: empty response")
		}
		return aws.ToString(createOut.ResponseHeadersPolicy.Id), nil
	}

	getOut, err := c.client.GetResponseHeadersPolicy(ctx,
		&cloudfront.GetResponseHeadersPolicyInput{
			Id: aws.String(existingID),
		})
	if err != nil {
		return "", fmt.Errorf("getting policy for update: %w", err)
	}

	if _, err := c.client.UpdateResponseHeadersPolicy(ctx,
		&cloudfront.UpdateResponseHeadersPolicyInput{
			Id:                          aws.String(existingID),
			ResponseHeadersPolicyConfig: policyCfg,
			IfMatch:                     getOut.ETag,
		}); err != nil {
		return "", fmt.Errorf("updating policy: %w", err)
	}
	return existingID, nil
}

// findPolicyByName pages through custom response headers policies looking
// for one with the given name. Returns "" when none matches.
func (c *AWSCloudFrontHeadersPolicyClient) findPolicyByName(ctx context.Context, name string) (string, error) {
	input := &cloudfront.ListResponseHeadersPoliciesInput{
		Type: cftypes.ResponseHeadersPolicyTypeCustom,
	}

	for {
		out, err := c.client.ListResponseHeadersPolicies(ctx, input)
		if err != nil {
			return "", fmt.Errorf("listing response headers policies: %w", err)
		}
		if out.ResponseHeadersPolicyList == nil {
			return "", nil
		}

		for _, item := range out.ResponseHeadersPolicyList.Items {
			if item.ResponseHeadersPolicy != nil &&
				item.ResponseHeadersPolicy.ResponseHeadersPolicyConfig != nil &&
				aws.ToString(item.ResponseHeadersPolicy.ResponseHeadersPolicyConfig.Name) == name {
				return aws.ToString(item.ResponseHeadersPolicy.Id), nil
			}
		}

		if out.ResponseHeadersPolicyList.NextMarker == nil {
			return "", nil
		}
		input.Marker = out.ResponseHeadersPolicyList.NextMarker
	}
}

// associatePolicy sets the policy ID on the distribution's default cache
// behavior unless it already points there.
func (c *AWSCloudFrontHeadersPolicyClient) associatePolicy(
	ctx context.Context, distributionID, policyID string,
) error {
	getOut, err := c.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		return fmt.Errorf("getting distribution config: %w", err)
	}

	distConfig := getOut.DistributionConfig
	if distConfig == nil || distConfig.DefaultCacheBehavior == nil {
		return fmt.Errorf("distribution %q has no default cache behavior", distributionID)
	}
	behavior := distConfig.DefaultCacheBehavior

	if aws.ToString(behavior.ResponseHeadersPolicyId) == policyID {
		return nil
	}
	behavior.ResponseHeadersPolicyId = aws.String(policyID)

	if _, err := c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(distributionID),
		DistributionConfig: distConfig,
		IfMatch:            getOut.ETag,
	}); err != nil {
		return fmt.Errorf("updating distribution: %w", err)
	}
	return nil
}
