// Package objectstorage provides access to the bucket which holds the report file
// and other pipeline artifacts.
package objectstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage reads and writes whole objects.
//
// Objects handled by this tool (report files) are small, so they are passed as bytes.
type Storage interface {
	// Get returns the content of the object.
	//
	// If there are no such objects, it returns an error wrapping ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put creates or overwrites the object.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// Key joins a prefix ("folder" in a bucket) and an object name.
func Key(prefix string, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + strings.TrimPrefix(name, "/")
}

// URI returns the s3:// URI of the key in the bucket.
func URI(bucket string, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
