// Package store keeps the report file on object storage.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/opst/mlci/pkg/objectstorage"
	"github.com/opst/mlci/pkg/report"
	"github.com/opst/mlci/pkg/utils/retry"
)

const contentType = "text/csv"

type Store struct {
	storage objectstorage.Storage
	bucket  string
	key     string
}

func New(storage objectstorage.Storage, bucket, key string) *Store {
	return &Store{storage: storage, bucket: bucket, key: key}
}

// URI of the report file.
func (s *Store) URI() string {
	return objectstorage.URI(s.bucket, s.key)
}

// Load downloads and parses the report file.
//
// If the report file does not exist, it returns an error wrapping objectstorage.ErrNotFound.
func (s *Store) Load(ctx context.Context) (report.Table, error) {
	content, err := s.storage.Get(ctx, s.bucket, s.key)
	if err != nil {
		return report.Table{}, err
	}
	t, err := report.Parse(bytes.NewReader(content))
	if err != nil {
		return report.Table{}, fmt.Errorf("%s: %w", s.URI(), err)
	}
	return t, nil
}

func (s *Store) save(ctx context.Context, t report.Table) error {
	content, err := t.Bytes()
	if err != nil {
		return err
	}
	return s.storage.Put(ctx, s.bucket, s.key, content, contentType)
}

// Update appends the entry to the report file and uploads it.
//
// When there are no report files yet, it uploads an empty report
// whose columns are the identity columns and metricKeys before appending.
// Other errors on downloading are returned as they are.
//
// # Returns
//
// - report.Table: the report file as uploaded.
//
// - error
func (s *Store) Update(ctx context.Context, entry report.Entry, metricKeys []string) (report.Table, error) {
	t, err := s.Load(ctx)
	if errors.Is(err, objectstorage.ErrNotFound) {
		t = report.Template(metricKeys)
		if err := s.save(ctx, t); err != nil {
			return report.Table{}, fmt.Errorf("failed to create report template: %w", err)
		}
	} else if err != nil {
		return report.Table{}, err
	}

	t, err = t.Append(entry)
	if err != nil {
		return report.Table{}, err
	}
	if err := s.save(ctx, t); err != nil {
		return report.Table{}, err
	}
	return t, nil
}

// WaitForCommit polls the report file until rows for the commit appear.
//
// If jobName is not empty, only rows written by that training job count,
// so rows left by earlier runs on the same commit are not taken.
//
// A missing report file is handled as "not yet".
// It gives up when ctx is done or one of checks returns an error.
// checks are called before each download.
func (s *Store) WaitForCommit(
	ctx context.Context,
	commitHash string,
	jobName string,
	backoff retry.Backoff,
	checks ...func(context.Context) error,
) ([]report.Row, error) {
	return retry.Blocking(ctx, retry.Immediately(backoff), func() ([]report.Row, error) {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return nil, err
			}
		}
		t, err := s.Load(ctx)
		if errors.Is(err, objectstorage.ErrNotFound) {
			return nil, retry.ErrRetry
		}
		if err != nil {
			return nil, err
		}
		rows := t.FindByCommit(commitHash)
		if jobName != "" {
			rows = slices.DeleteFunc(rows, func(r report.Row) bool {
				return r.TrainingJobName() != jobName
			})
		}
		if len(rows) == 0 {
			return nil, retry.ErrRetry
		}
		return rows, nil
	})
}
