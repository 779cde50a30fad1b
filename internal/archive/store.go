package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Harsh-BH/alsit/internal/domain"
)

const (
	testsFileName           = "tests.tar"
	compressedTestsFileName = "tests.tar.zst"

	// maxTestArchiveBytes caps a decompressed test archive held in memory.
	maxTestArchiveBytes = 512 << 20
)

// TestStore loads the pre-built test archive for an exercise.
// Load returns domain.ErrExerciseNotFound when the exercise has no archive and
// wraps domain.ErrStorageUnavailable for every other failure.
type TestStore interface {
	Load(ctx context.Context, exerciseID int64) ([]byte, error)
}

var (
	_ TestStore = (*FileTestStore)(nil)
	_ TestStore = (*MinIOTestStore)(nil)
)

// FileTestStore reads <root>/<exercise_id>/tests.tar, falling back to tests.tar.zst.
type FileTestStore struct {
	root string
}

// NewFileTestStore creates a filesystem-backed test store.
func NewFileTestStore(root string) *FileTestStore {
	return &FileTestStore{root: root}
}

// Path returns where the plain archive for an exercise is expected.
func (s *FileTestStore) Path(exerciseID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(exerciseID, 10), testsFileName)
}

func (s *FileTestStore) Load(ctx context.Context, exerciseID int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plain := s.Path(exerciseID)
	data, err := os.ReadFile(plain)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStorageUnavailable, plain, err)
	}

	compressed := filepath.Join(filepath.Dir(plain), compressedTestsFileName)
	f, err := os.Open(compressed)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: exercise %d", domain.ErrExerciseNotFound, exerciseID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStorageUnavailable, compressed, err)
	}
	defer f.Close()

	return decompress(f)
}

// MinIOConfig holds object storage settings for test archives.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
	// Region skips the bucket location lookup when set.
	Region string
	// MaxRetries overrides the client's retry count for failed requests; 0 keeps its default.
	MaxRetries int
}

// MinIOTestStore reads <prefix><exercise_id>/tests.tar(.zst) from a bucket.
type MinIOTestStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOTestStore creates an object-storage-backed test store.
func NewMinIOTestStore(cfg MinIOConfig) (*MinIOTestStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:      credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:     cfg.UseSSL,
		Region:     cfg.Region,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	return &MinIOTestStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *MinIOTestStore) objectKey(exerciseID int64, name string) string {
	return s.prefix + strconv.FormatInt(exerciseID, 10) + "/" + name
}

func (s *MinIOTestStore) Load(ctx context.Context, exerciseID int64) ([]byte, error) {
	data, err := s.get(ctx, s.objectKey(exerciseID, testsFileName))
	if err == nil {
		return data, nil
	}
	if !isNoSuchKey(err) {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(exerciseID, compressedTestsFileName), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: minio get object failed: %w", domain.ErrStorageUnavailable, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	if _, err := obj.Stat(); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: exercise %d", domain.ErrExerciseNotFound, exerciseID)
		}
		return nil, fmt.Errorf("%w: minio stat failed: %w", domain.ErrStorageUnavailable, err)
	}
	return decompress(obj)
}

func (s *MinIOTestStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func decompress(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd reader: %w", domain.ErrStorageUnavailable, err)
	}
	defer dec.Close()

	data, err := io.ReadAll(io.LimitReader(dec, maxTestArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %w", domain.ErrStorageUnavailable, err)
	}
	if len(data) > maxTestArchiveBytes {
		return nil, fmt.Errorf("%w: decompressed test archive exceeds %d bytes", domain.ErrStorageUnavailable, maxTestArchiveBytes)
	}
	return data, nil
}
