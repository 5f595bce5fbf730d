// Package s3feed reads feed files from an S3-compatible bucket. A location
// of the form s3://bucket/prefix is treated like a directory: the objects
// directly under the prefix are candidates, visited in key order.
package s3feed

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/feeds"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// Scheme prefixes bucket locations.
const Scheme = "s3://"

// API is the subset of the S3 client the source uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds client construction parameters. Empty credentials fall back
// to the default AWS credential chain.
type Config struct {
	Region          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Source is a feeds.Source backed by a bucket prefix.
type Source struct {
	client API
	bucket string
	prefix string
}

// IsLocation reports whether loc names a bucket location.
func IsLocation(loc string) bool {
	return strings.HasPrefix(loc, Scheme)
}

// ParseLocation splits s3://bucket/prefix into its parts. The prefix is
// returned with a trailing slash unless it is empty.
func ParseLocation(loc string) (bucket, prefix string, err error) {
	if !IsLocation(loc) {
		return "", "", errors.NewValidationError("location", loc, "not an s3:// location")
	}
	rest := strings.TrimPrefix(loc, Scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.NewValidationError("location", loc, "bucket is required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// New creates a Source for location using the default AWS configuration
// overlaid with cfg.
func New(ctx context.Context, location string, cfg Config) (*Source, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewConfigError("s3feed", "failed to load AWS configuration", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, bucket, prefix), nil
}

// NewWithClient creates a Source over an existing client.
func NewWithClient(client API, bucket, prefix string) *Source {
	return &Source{client: client, bucket: bucket, prefix: prefix}
}

// Open implements feeds.Source.
func (s *Source) Open(ctx context.Context, ext string) (string, io.ReadCloser, error) {
	keys, err := s.list(ctx)
	if err != nil {
		return "", nil, err
	}

	for _, key := range keys {
		if !feeds.HasExtension(path.Base(key), ext) {
			continue
		}
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(key)})
		if err != nil {
			return "", nil, errors.WrapIO("get", s.uri(key), err)
		}
		logging.FromContext(ctx).Debug().Str("object", s.uri(key)).Msg("Opened feed object")
		return s.uri(key), out.Body, nil
	}

	return "", nil, errors.NewNotFoundError("feed object", s.uri("*"+ext))
}

func (s *Source) String() string {
	return s.uri("")
}

func (s *Source) uri(key string) string {
	if key == "" {
		return Scheme + s.bucket + "/" + s.prefix
	}
	if !strings.HasPrefix(key, s.prefix) {
		key = s.prefix + key
	}
	return Scheme + s.bucket + "/" + key
}

// list returns the object keys directly under the prefix, sorted.
func (s *Source) list(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(s.prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.WrapIO("list", s.uri(""), err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}

var _ feeds.Source = (*Source)(nil)
