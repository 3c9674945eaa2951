// Package avatar turns stored avatar references into URLs a browser can load.
//
// Users store either an absolute URL or an object key in the uploads bucket.
// Absolute URLs pass through untouched; object keys are presigned for GET
// and cached until shortly before the signature expires.
package avatar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/larder/pkg/observability"
)

// presignTimeout bounds one shared presign call
const presignTimeout = 5 * time.Second

// Resolver maps a stored avatar reference to a URL. An empty reference
// resolves to the empty string.
type Resolver interface {
	URL(ctx context.Context, ref string) (string, error)
}

// Passthrough returns references unchanged. It is used when no uploads
// bucket is configured.
type Passthrough struct{}

// URL implements Resolver
func (Passthrough) URL(ctx context.Context, ref string) (string, error) {
	return ref, nil
}

// isDirect reports whether ref is already a URL or site-relative path
func isDirect(ref string) bool {
	return strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "/")
}

// PresignClient is the subset of *s3.PresignClient used here
type PresignClient interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config configures the S3 presigner
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	URLTTL       time.Duration
	CacheSize    int
}

// S3Presigner presigns object keys and caches the results
type S3Presigner struct {
	client  PresignClient
	bucket  string
	ttl     time.Duration
	cache   *lru.LRU[string, string]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewS3Presigner builds a presigner from AWS configuration. Static
// credentials are used when given, otherwise the default chain.
func NewS3Presigner(ctx context.Context, cfg Config, metrics *observability.Metrics) (*S3Presigner, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewPresigner(s3.NewPresignClient(client), cfg, metrics), nil
}

// NewPresigner wraps an existing presign client
func NewPresigner(client PresignClient, cfg Config, metrics *observability.Metrics) *S3Presigner {
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	return &S3Presigner{
		client: client,
		bucket: cfg.Bucket,
		ttl:    ttl,
		// Entries expire at half the signature lifetime so a cached URL
		// always has at least ttl/2 of validity left.
		cache:   lru.NewLRU[string, string](size, nil, ttl/2),
		metrics: metrics,
	}
}

// URL implements Resolver
func (p *S3Presigner) URL(ctx context.Context, ref string) (string, error) {
	if ref == "" || isDirect(ref) {
		return ref, nil
	}

	if url, ok := p.cache.Get(ref); ok {
		p.metrics.RecordAvatarCache(true)
		return url, nil
	}
	p.metrics.RecordAvatarCache(false)

	// The flight outlives whichever caller started it
	ch := p.group.DoChan(ref, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presignTimeout)
		defer cancel()

		req, err := p.client.PresignGetObject(flightCtx, &s3.GetObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(ref),
		}, s3.WithPresignExpires(p.ttl))
		if err != nil {
			return "", fmt.Errorf("failed to presign avatar %q: %w", ref, err)
		}
		p.cache.Add(ref, req.URL)
		return req.URL, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
