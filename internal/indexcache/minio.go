package indexcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig describes an S3 compatible bucket
type MinioConfig struct {
	EndpointURL     string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access-key"`
	SecretAccessKey string `mapstructure:"secret-key"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"ssl"`
}

// MinioStore keeps artifacts as objects <Prefix>/<location>/<name>
type MinioStore struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinioStore connects to the endpoint and creates the bucket if needed
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.EndpointURL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("index store: endpoint and bucket are required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("index store: credentials are required")
	}
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("index store: invalid endpoint URL: %w", err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("index store: %w", err)
		}
	}
	return &MinioStore{client: client, cfg: cfg}, nil
}

func (s *MinioStore) key(location, name string) string {
	return path.Join(s.cfg.Prefix, location, name)
}

func (s *MinioStore) Get(ctx context.Context, location, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.key(location, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(location, name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify(location, name, err)
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, location, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, s.key(location, name),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
	return err
}

func (s *MinioStore) classify(location, name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, s.key(location, name))
	}
	return err
}

func (s *MinioStore) String() string {
	return "s3://" + path.Join(s.cfg.Bucket, s.cfg.Prefix)
}
