package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is where processed images end up.
type ObjectStore interface {
	// Upload stores data under key and returns a reference to persist.
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Resolve turns a reference returned by Upload into a loadable URL.
	// Other values pass through unchanged.
	Resolve(ctx context.Context, ref string) (string, error)
}

type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucket     string
	region     string
	endpoint   string
	publicRead bool
	presignTTL time.Duration
}

// NewS3Store uses the default AWS credential chain. A non-empty endpoint targets an
// S3 compatible server such as MinIO with path-style addressing.
func NewS3Store(ctx context.Context, region, bucket, endpoint string, publicRead bool) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		region:     region,
		endpoint:   endpoint,
		publicRead: publicRead,
		presignTTL: 24 * time.Hour,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	if s.publicRead {
		return s.publicURL(key), nil
	}
	return s.ref(key), nil
}

// Private objects are persisted as s3://<bucket>/<key> and presigned on every read.
func (s *S3Store) ref(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3Store) Resolve(ctx context.Context, ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, s.ref(""))
	if !ok || key == "" {
		return ref, nil
	}
	return s.PresignURL(ctx, key, s.presignTTL)
}

func (s *S3Store) publicURL(key string) string {
	escaped := url.PathEscape(key)
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

func (s *S3Store) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// MemoryStore keeps objects in memory. Used when no bucket is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (m *MemoryStore) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

func (m *MemoryStore) Resolve(_ context.Context, ref string) (string, error) {
	return ref, nil
}

func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}
