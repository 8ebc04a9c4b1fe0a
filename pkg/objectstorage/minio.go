package objectstorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultEndpoint is the endpoint of Amazon S3.
const DefaultEndpoint = "s3.amazonaws.com"

type Config struct {
	// Endpoint is host[:port] of the S3 compatible service.
	//
	// Empty means DefaultEndpoint.
	Endpoint string

	Region string

	// Insecure disables TLS. Only for local S3 compatible services.
	Insecure bool

	// Credentials is used to sign requests.
	//
	// If nil, credentials are looked up in the environment variables,
	// the shared credentials file and the instance/task role, in this order.
	Credentials *credentials.Credentials
}

type minioStorage struct {
	client *minio.Client
}

// NewMinio returns a Storage backed by minio-go.
func NewMinio(conf Config) (Storage, error) {
	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	creds := conf.Credentials
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: !conf.Insecure,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client failed: %w", err)
	}
	return &minioStorage{client: client}, nil
}

func (m *minioStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, asNotFound(err, bucket, key)
	}
	defer obj.Close()

	// GetObject is lazy. Errors including "no such key" are reported on first read.
	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, asNotFound(err, bucket, key)
	}
	return content, nil
}

func (m *minioStorage) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := m.client.PutObject(
		ctx, bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", URI(bucket, key), err)
	}
	return nil
}

func asNotFound(err error, bucket, key string) error {
	// NoSuchBucket is also 404, but it is a misconfiguration, not a missing object.
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code == "") {
		return fmt.Errorf("%w: %s", ErrNotFound, URI(bucket, key))
	}
	return fmt.Errorf("failed to download %s: %w", URI(bucket, key), err)
}
