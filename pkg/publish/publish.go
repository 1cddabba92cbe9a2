// Package publish uploads the artifacts of a completed run to S3-compatible
// object storage (AWS S3, MinIO).
package publish

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/layout"
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string // empty for AWS
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Result lists the uploaded object keys.
type Result struct {
	Bucket string
	Keys   []string
}

// Publisher uploads a run.
type Publisher interface {
	Publish(ctx context.Context, m *layout.Manifest) (*Result, error)
}

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads to one bucket.
type S3Publisher struct {
	cfg    Config
	client objectAPI
	logger *log.Logger
}

// NewS3Publisher loads AWS configuration, overlaying static credentials and
// a custom endpoint when set.
func NewS3Publisher(ctx context.Context, cfg Config, logger *log.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfig, "upload.bucket is required when upload is enabled")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newPublisher(cfg, client, logger), nil
}

func newPublisher(cfg Config, client objectAPI, logger *log.Logger) *S3Publisher {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &S3Publisher{cfg: cfg, client: client, logger: logger}
}

// Keys returns the object key for every artifact of m, in upload order.
func (p *S3Publisher) Keys(m *layout.Manifest) map[string]string {
	out := make(map[string]string)
	for _, file := range artifactFiles(m) {
		out[file] = p.key(m.BaseName, file)
	}
	return out
}

func (p *S3Publisher) key(base, file string) string {
	return path.Join(strings.Trim(p.cfg.Prefix, "/"), base, file)
}

// Publish uploads the tiles, grid, sheet and manifest of m. The bucket is
// created when missing. Failures are UPLOAD_ERROR; objects already uploaded
// stay in place.
func (p *S3Publisher) Publish(ctx context.Context, m *layout.Manifest) (*Result, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}

	res := &Result{Bucket: p.cfg.Bucket}
	for _, file := range artifactFiles(m) {
		key := p.key(m.BaseName, file)
		if err := p.put(ctx, filepath.Join(m.RunDir, file), key); err != nil {
			return res, err
		}
		res.Keys = append(res.Keys, key)
		p.logger.Debug("uploaded", "bucket", p.cfg.Bucket, "key", key)
	}
	return res, nil
}

func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.cfg.Bucket)})
	if err == nil {
		return nil
	}
	if _, err := p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.cfg.Bucket)}); err != nil {
		return errors.Wrap(errors.ErrCodeUpload, err, "create bucket %s", p.cfg.Bucket)
	}
	p.logger.Info("created bucket", "bucket", p.cfg.Bucket)
	return nil
}

func (p *S3Publisher) put(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeUpload, err, "open %s", src)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(src)),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeUpload, err, "upload %s", key)
	}
	return nil
}

func artifactFiles(m *layout.Manifest) []string {
	files := append([]string{}, m.Tiles...)
	if m.Grid != "" {
		files = append(files, m.Grid)
	}
	if m.Sheet != "" {
		files = append(files, m.Sheet)
	}
	if m.Path != "" {
		files = append(files, filepath.Base(m.Path))
	}
	return files
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
