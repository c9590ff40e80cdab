package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"doubtdesk/internal/config"
)

// Client wraps the MinIO SDK client with its default bucket. The service uses
// it to fetch image resource bytes when answering in vision mode.
type Client struct {
	Client *minio.Client
	Bucket string
}

// NewClient creates a MinIO client handle.
func NewClient(cfg *config.MinIOConfig) (*Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Client{Client: c, Bucket: cfg.Bucket}, nil
}

// FetchObject downloads an object and returns its bytes and content type.
func (c *Client) FetchObject(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object '%s': %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat object '%s': %w", key, err)
	}

	return data, stat.ContentType, nil
}
