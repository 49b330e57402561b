package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/util/logger"
)

// BlobClient is the narrow set of object-level operations the remote
// store needs from the backing blob service. It exists so we can swap
// in a fault-injecting fake for tests.
//
// Note that we define object-level methods only. The store needs to put,
// get, delete and list objects. It does not create buckets or modify
// bucket policies, and we don't want it to even be able to perform
// those operations.
type BlobClient interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (*service.StoredObject, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]*service.StoredObject, error)
}

// MinioBlobClient implements BlobClient on top of an S3-compatible
// service through minio-go.
type MinioBlobClient struct {
	client *minio.Client
	logger *logging.Logger
}

// NewMinioBlobClient connects to the S3-compatible service at host.
// Host is host:port without a scheme.
func NewMinioBlobClient(host, keyID, secretKey string, useSSL bool, logger *logging.Logger) (*MinioBlobClient, error) {
	// Path-style bucket lookup so local test servers work.
	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(keyID, secretKey, ""),
		Secure:       useSSL,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("Cannot create S3 client for %s: %v", host, err)
	}
	return &MinioBlobClient{
		client: client,
		logger: logger,
	}, nil
}

// EndpointURL returns the URL of the S3 endpoint. The public URL
// fallback uses it when no explicit public base URL is configured.
func (c *MinioBlobClient) EndpointURL() *url.URL {
	return c.client.EndpointURL()
}

func (c *MinioBlobClient) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	size := int64(len(data))
	progress := logger.NewUploadProgressLogger(c.logger, fmt.Sprintf("put %s/%s", bucket, key), size)
	info, err := c.client.PutObject(ctx, bucket, key, bytes.NewReader(data), size, minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    progress,
	})
	if err != nil {
		return err
	}
	if info.Size != size {
		return fmt.Errorf("Uploaded only %d of %d bytes to %s/%s", info.Size, size, bucket, key)
	}
	return nil
}

func (c *MinioBlobClient) GetObject(ctx context.Context, bucket, key string) (*service.StoredObject, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// GetObject is lazy. Stat forces the request so a missing key
	// surfaces here as NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != info.Size {
		return nil, fmt.Errorf("Read only %d of %d bytes from %s/%s: %w", len(data), info.Size, bucket, key, io.ErrUnexpectedEOF)
	}
	return &service.StoredObject{
		Bucket:      bucket,
		Content:     data,
		ContentType: info.ContentType,
		CreatedAt:   info.LastModified,
		Key:         key,
		Size:        info.Size,
	}, nil
}

func (c *MinioBlobClient) RemoveObject(ctx context.Context, bucket, key string) error {
	return c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (c *MinioBlobClient) ListObjects(ctx context.Context, bucket, prefix string) ([]*service.StoredObject, error) {
	objects := make([]*service.StoredObject, 0)
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	for info := range c.client.ListObjects(ctx, bucket, opts) {
		if info.Err != nil {
			return nil, info.Err
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, &service.StoredObject{
			Bucket:      bucket,
			ContentType: info.ContentType,
			CreatedAt:   info.LastModified,
			Key:         info.Key,
			Size:        info.Size,
		})
	}
	return objects, nil
}
