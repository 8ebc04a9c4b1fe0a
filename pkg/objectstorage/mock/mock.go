package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/opst/mlci/pkg/objectstorage"
)

type PutArgs struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// Storage is an in-memory objectstorage.Storage.
//
// Set GetErr/PutErr to inject errors. They are called before objects are touched,
// so they may modify the storage.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte

	GetErr func(bucket, key string) error
	PutErr func(bucket, key string) error

	Calls struct {
		Get []string
		Put []PutArgs
	}
}

var _ objectstorage.Storage = &Storage{}

func New() *Storage {
	return &Storage{objects: map[string][]byte{}}
}

// With stores an object in advance.
func (s *Storage) With(bucket, key string, body []byte) *Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	return s
}

// Object returns the stored object.
func (s *Storage) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}

func (s *Storage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	s.Calls.Get = append(s.Calls.Get, bucket+"/"+key)
	getErr := s.GetErr
	s.mu.Unlock()

	if getErr != nil {
		if err := getErr(bucket, key); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstorage.ErrNotFound, objectstorage.URI(bucket, key))
	}
	return append([]byte{}, b...), nil
}

func (s *Storage) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	s.mu.Lock()
	s.Calls.Put = append(s.Calls.Put, PutArgs{Bucket: bucket, Key: key, Body: body, ContentType: contentType})
	putErr := s.PutErr
	s.mu.Unlock()

	if putErr != nil {
		if err := putErr(bucket, key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = append([]byte{}, body...)
	return nil
}
