// Package s3 implements objstore.Store over AWS S3, adapted from the
// cloud/aws vfs.FS wrapper this repo's teacher shipped: same aws-sdk-go
// session/client shape and bucket+prefix addressing, generalized from a
// pebble vfs.File surface to the narrower objstore.Store contract.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cockroachdb/errors"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/objstore"
)

// Store addresses objects at Prefix/<path> within Bucket.
type Store struct {
	client *s3.S3
	Bucket string
	Prefix string
}

// New creates a Store from an existing AWS session, the same construction
// shape cloud_fs.go used for its CloudFs.
func New(sess *session.Session, bucket, prefix string) *Store {
	return &Store{client: s3.New(sess), Bucket: bucket, Prefix: prefix}
}

func (s *Store) key(path string) string {
	if s.Prefix == "" {
		return path
	}
	return s.Prefix + "/" + path
}

func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return base.WithKind(err, base.KindTransientIO)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	defer out.Body.Close()
	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return data, nil
}

func (s *Store) GetRange(ctx context.Context, path string, start, length int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, start+length-1)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	defer out.Body.Close()
	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return data, nil
}

func (s *Store) Head(ctx context.Context, path string) (objstore.Info, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return objstore.Info{}, base.WithKind(err, base.KindTransientIO)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return objstore.Info{Path: path, Size: size}, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return base.WithKind(err, base.KindTransientIO)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Info, error) {
	var out []objstore.Info
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.key(prefix)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if s.Prefix != "" {
				key = key[len(s.Prefix)+1:]
			}
			out = append(out, objstore.Info{Path: key, Size: aws.Int64Value(obj.Size)})
		}
		return true
	})
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return out, nil
}

func (s *Store) Copy(ctx context.Context, src, dst string) error {
	source := fmt.Sprintf("%s/%s", s.Bucket, s.key(src))
	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.Bucket),
		CopySource: aws.String(source),
		Key:        aws.String(s.key(dst)),
	})
	if err != nil {
		return base.WithKind(err, base.KindTransientIO)
	}
	return nil
}

// CopyIfNotExists checks for dst's absence with a HEAD request before
// copying. S3 has no server-side conditional-put, so this is a best-effort
// check: concurrent publishers can still race between the HEAD and the
// CopyObject call.
func (s *Store) CopyIfNotExists(ctx context.Context, src, dst string) error {
	if _, err := s.Head(ctx, dst); err == nil {
		return base.WithKind(errors.New("s3: destination already exists"), base.KindConcurrencyViolation)
	}
	return s.Copy(ctx, src, dst)
}
