// Package s3 implements store.Store on an S3 (or S3-compatible) bucket.
//
// Every file is one object under an optional key prefix. Uploads are staged
// in a local temporary file and sent with a single PutObject on commit, so a
// failed or aborted upload never reaches the bucket. ModeAdd downloads the
// existing object into the staging file first; S3 has no append.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Client is the subset of *s3.Client used by the store.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	// Client is the configured S3 client. Required.
	Client Client

	// Bucket is the bucket name. Required.
	Bucket string

	// KeyPrefix is prepended to every file name, e.g. "files/".
	KeyPrefix string

	// StagingDir holds in-progress uploads. Defaults to os.TempDir().
	StagingDir string

	// SkipBucketCheck disables the HeadBucket probe in NewS3Store.
	SkipBucketCheck bool
}

// S3Store maps file names to objects in one bucket.
type S3Store struct {
	client     Client
	bucket     string
	keyPrefix  string
	stagingDir string
}

var _ store.Store = (*S3Store)(nil)

// NewS3Store validates the configuration and checks that the bucket is
// reachable.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	stagingDir := cfg.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging directory %q: %w", stagingDir, err)
	}

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{
		client:     cfg.Client,
		bucket:     cfg.Bucket,
		keyPrefix:  cfg.KeyPrefix,
		stagingDir: stagingDir,
	}, nil
}

func (s *S3Store) key(name string) string {
	return s.keyPrefix + name
}

// isNotFound recognizes the different shapes of "missing object" errors:
// typed errors from GetObject, bare 404s from HeadObject, and generic API
// errors from S3-compatible servers.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func (s *S3Store) head(ctx context.Context, name string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to head object %q: %w", s.key(name), err)
	}
	return out, nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := store.ValidateName(name); err != nil {
		return false, err
	}
	_, err := s.head(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *S3Store) Stat(ctx context.Context, name string) (store.FileRecord, error) {
	if err := store.ValidateName(name); err != nil {
		return store.FileRecord{}, err
	}
	out, err := s.head(ctx, name)
	if err != nil {
		return store.FileRecord{}, err
	}
	return store.FileRecord{
		Name:    name,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// List pages through every object under the key prefix. Keys that would not
// be valid file names (nested "directories", reserved names) are skipped.
func (s *S3Store) List(ctx context.Context) ([]store.FileRecord, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	var records []store.FileRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix)
			if store.ValidateName(name) != nil {
				continue
			}
			records = append(records, store.FileRecord{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, 0, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to get object %q: %w", s.key(name), err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) Create(ctx context.Context, name string, mode store.WriteMode) (store.Writer, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	effective := store.ResolveMode(mode, exists)

	tmp, err := os.CreateTemp(s.stagingDir, store.TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("stage upload for %q: %w", name, err)
	}

	w := &s3Writer{ctx: ctx, s: s, name: name, mode: effective, tmp: tmp}

	if effective == store.ModeAdd {
		if err := w.preload(); err != nil {
			_ = w.discard()
			return nil, err
		}
	}
	return w, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report store.ErrNotFound.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}
	if _, err := s.head(ctx, name); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", s.key(name), err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no per-store resources.
func (s *S3Store) Close() error {
	return nil
}

type s3Writer struct {
	ctx  context.Context
	s    *S3Store
	name string
	mode store.WriteMode
	tmp  *os.File
	done bool
}

// preload copies the current object into the staging file so that new
// writes land after it.
func (w *s3Writer) preload() error {
	rc, _, err := w.s.Open(w.ctx, w.name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(w.tmp, rc); err != nil {
		return fmt.Errorf("download %q for append: %w", w.name, err)
	}
	return nil
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}
	return w.tmp.Write(p)
}

func (w *s3Writer) Mode() store.WriteMode {
	return w.mode
}

func (w *s3Writer) Commit() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	defer func() { _ = w.discard() }()

	size, err := w.tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("measure upload for %q: %w", w.name, err)
	}
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload for %q: %w", w.name, err)
	}

	_, err = w.s.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.s.bucket),
		Key:           aws.String(w.s.key(w.name)),
		Body:          w.tmp,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", w.s.key(w.name), err)
	}

	logger.Debug("S3 store: committed %s (%d bytes, mode=%s)", w.s.key(w.name), size, w.mode)
	return nil
}

func (w *s3Writer) Abort() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	return w.discard()
}

func (w *s3Writer) discard() error {
	_ = w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
