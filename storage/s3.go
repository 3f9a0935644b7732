// Package storage holds the remote destinations artifacts can be pushed to.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"subsai/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads artifacts to a bucket. It implements batch.ArtifactSink.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
}

// NewS3Sink builds a sink from the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg *config.Config) (*S3Sink, error) {
	if !cfg.S3Enabled() {
		return nil, errors.New("s3 bucket is not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SinkWithClient(client, cfg.S3Bucket), nil
}

func NewS3SinkWithClient(client PutObjectAPI, bucket string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, now: time.Now}
}

// Upload stores content under folder/filename and returns its s3:// URL.
func (s *S3Sink) Upload(ctx context.Context, content []byte, filename, folder string) (string, error) {
	key, err := ObjectKey(folder, filename)
	if err != nil {
		return "", err
	}
	format := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(ContentType(format)),
		Metadata: map[string]string{
			"original_filename": filename,
			"subtitle_format":   format,
			"project_name":      folder,
			"upload_timestamp":  s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

var (
	unsafeKeyChars = regexp.MustCompile(`[^\w\-.]`)
	repeatedDashes = regexp.MustCompile(`-+`)
)

// SanitizeName replaces characters that are awkward in object keys with dashes.
func SanitizeName(name string) string {
	s := unsafeKeyChars.ReplaceAllString(name, "-")
	s = repeatedDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ObjectKey builds "folder/filename" from sanitized parts.
func ObjectKey(folder, filename string) (string, error) {
	f := SanitizeName(folder)
	n := SanitizeName(filename)
	if n == "" {
		return "", errors.New("filename is empty after sanitizing")
	}
	if f == "" {
		return n, nil
	}
	return f + "/" + n, nil
}

// ContentType maps a subtitle format to the MIME type stored with the object.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "vtt":
		return "text/vtt"
	case "ttml":
		return "application/ttml+xml"
	case "json", "ooona":
		return "application/json"
	default:
		return "text/plain"
	}
}
