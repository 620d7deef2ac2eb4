package records

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"memberdesk/cmd/ids"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3-compatible document bucket.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	DisableTLS     bool
}

// S3FileStore stores uploaded member documents in an S3-compatible bucket.
type S3FileStore struct {
	api    *s3.Client
	bucket string
}

// NewS3FileStore builds an S3 client for the configured endpoint.
func NewS3FileStore(ctx context.Context, cfg S3Config) (*S3FileStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if cfg.DisableTLS {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3FileStore{api: client, bucket: cfg.Bucket}, nil
}

// StoreUploadedFile uploads f under members/<id>/<doc_type>/<ulid> with a SHA-256 checksum.
func (s *S3FileStore) StoreUploadedFile(ctx context.Context, memberID string, docType DocType, f File) (Location, error) {
	if s == nil || s.api == nil {
		return Location{}, errors.New("s3: nil client")
	}
	if strings.TrimSpace(memberID) == "" || len(f.Data) == 0 {
		return Location{}, ErrInvalidInput
	}

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		return Location{}, err
	}
	key := objectKey(memberID, docType, id)
	sum := sha256.Sum256(f.Data)
	checksum := base64.StdEncoding.EncodeToString(sum[:])
	size := f.Size()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(f.Data),
		ContentLength:     aws.Int64(size),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(checksum),
		Metadata: map[string]string{
			"member-id":     memberID,
			"doc-type":      string(docType),
			"original-name": f.Name,
		},
	})
	if err != nil {
		return Location{}, fmt.Errorf("s3: put %s: %w", key, err)
	}

	return Location{Bucket: s.bucket, Key: key, Size: size, SHA256: hex.EncodeToString(sum[:])}, nil
}
