package uploads

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrInvalidKey = errors.New("invalid upload key")

// Service mints presigned download URLs for attachment keys. File bytes
// live in object storage; the messaging core only ever handles keys.
type Service struct {
	bucket    string
	presigner *s3.PresignClient
	ttl       time.Duration
}

func New(bucket string, presigner *s3.PresignClient, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Service{bucket: bucket, presigner: presigner, ttl: ttl}
}

func (s *Service) PresignDownload(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	ps, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = s.ttl
	})

	if err != nil {
		return "", err
	}

	return ps.URL, nil
}

func validateKey(key string) error {
	if !strings.HasPrefix(key, keyPrefix) {
		return ErrInvalidKey
	}
	if strings.Contains(key, "..") || strings.Contains(key, "//") {
		return ErrInvalidKey
	}
	if len(key) > 256 {
		return ErrInvalidKey
	}
	return nil
}
