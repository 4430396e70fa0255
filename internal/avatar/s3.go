// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package avatar stores user avatar images in S3-compatible object storage.
package avatar

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// DefaultMaxBytes caps a decoded avatar.
const DefaultMaxBytes = 5 << 20

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Config describes the bucket avatars are written to.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// PublicBaseURL prefixes object keys to form the returned URL. Defaults
	// to the virtual-hosted AWS URL of the bucket.
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	MaxBytes        int
}

// PutObjectAPI is the subset of *s3.Client the Host uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds an S3 client for cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("AVATAR_CONFIG_FAILED").With("region", cfg.Region).Wrap(err)
	}
	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Host uploads avatars and returns their public URLs.
type Host struct {
	client     PutObjectAPI
	bucket     string
	prefix     string
	publicBase string
	maxBytes   int
}

var _ auth.ImageHost = (*Host)(nil)

// NewHost creates a Host writing to cfg.Bucket through client.
func NewHost(client PutObjectAPI, cfg Config) (*Host, error) {
	if client == nil {
		return nil, oops.Code("AVATAR_INVALID_DEPS").Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, oops.Code("AVATAR_INVALID_CONFIG").Errorf("bucket is required")
	}
	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Host{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.KeyPrefix,
		publicBase: base,
		maxBytes:   maxBytes,
	}, nil
}

// Upload decodes a base64 data URI and stores it under id. Uploading the
// same id again overwrites the object, so retries are safe. Undecodable
// input wraps auth.ErrInvalidImage.
func (h *Host) Upload(ctx context.Context, dataURI, id string) (string, error) {
	contentType, data, err := h.decode(dataURI)
	if err != nil {
		return "", oops.Code("AVATAR_INVALID_IMAGE").With("id", id).Wrap(err)
	}

	key := h.prefix + id + extensions[contentType]
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", oops.Code("AVATAR_UPLOAD_FAILED").
			With("bucket", h.bucket).
			With("key", key).
			Wrap(err)
	}
	return h.publicBase + "/" + key, nil
}

// decode parses "data:<mime>;base64,<payload>" and checks the payload is an
// image of the declared kind.
func (h *Host) decode(dataURI string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri: %w", auth.ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data uri has no payload: %w", auth.ErrInvalidImage)
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data uri is not base64: %w", auth.ErrInvalidImage)
	}
	contentType = strings.ToLower(contentType)
	if _, ok := extensions[contentType]; !ok {
		return "", nil, fmt.Errorf("unsupported image type %q: %w", contentType, auth.ErrInvalidImage)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > h.maxBytes {
		return "", nil, fmt.Errorf("image exceeds %d bytes: %w", h.maxBytes, auth.ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", errors.Join(err, auth.ErrInvalidImage))
	}
	if sniffed := http.DetectContentType(data); sniffed != contentType {
		return "", nil, fmt.Errorf("content is %s, declared %s: %w", sniffed, contentType, auth.ErrInvalidImage)
	}
	return contentType, data, nil
}
