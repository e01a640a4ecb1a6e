package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient implements Client on any S3-compatible backend. It exists for
// self-hosted deployments without the file-hosting service; note that such
// backends store bytes only and do not honour the on-demand transformation
// query parameters the FHS applies at serve time.
type MinioClient struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioClient creates a MinIO client and ensures the bucket exists with
// a public-read policy.
func NewMinioClient(endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Printf("files: created bucket %q", bucket)
	}

	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// BaseURL returns the browser-accessible base under which objects live.
func (m *MinioClient) BaseURL() string {
	return m.publicBase
}

// Upload streams body into the bucket under the key derived from targetURL.
func (m *MinioClient) Upload(ctx context.Context, targetURL string, body io.Reader, size int64, contentType string) error {
	key, err := m.objectKey(targetURL)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Delete removes the object addressed by targetURL from the bucket.
func (m *MinioClient) Delete(ctx context.Context, targetURL string) error {
	key, err := m.objectKey(targetURL)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// objectKey maps a fully-qualified object URL back to its bucket key.
func (m *MinioClient) objectKey(targetURL string) (string, error) {
	if !strings.HasPrefix(targetURL, m.publicBase+"/") {
		return "", fmt.Errorf("files: %q is outside base %q", targetURL, m.publicBase)
	}
	return strings.TrimPrefix(targetURL, m.publicBase+"/"), nil
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
