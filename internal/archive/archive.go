// Package archive uploads sandbox exec output to an S3-compatible object
// store so it survives teardown.
//
// Objects are written to {prefix}/{sandbox}/{stream}.log while the stream
// is still running; the upload is streamed, not buffered.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// partSize is the multipart chunk used for uploads of unknown length.
const partSize = 5 << 20

// Store is the subset of the MinIO client used for archival.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes exec output streams into a bucket.
type Archiver struct {
	store  Store
	bucket string
	prefix string
	logger *slog.Logger
}

// New creates an Archiver on top of an existing store.
func New(store Store, bucket, prefix string) *Archiver {
	return &Archiver{
		store:  store,
		bucket: bucket,
		prefix: prefix,
		logger: logging.Logger,
	}
}

// NewMinIO connects to the endpoint in cfg. It does not touch the network;
// call EnsureBucket to verify the connection.
func NewMinIO(cfg config.ArchiveConfig) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	ok, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if ok {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("created archive bucket", "bucket", a.bucket)
	return nil
}

// Key returns the object name for one stream of a sandbox.
func (a *Archiver) Key(sandbox, stream string) string {
	return path.Join(a.prefix, sandbox, stream+".log")
}

// Archive uploads everything read from r until EOF.
func (a *Archiver) Archive(ctx context.Context, sandbox, stream string, r io.Reader) error {
	key := a.Key(sandbox, stream)
	info, err := a.store.PutObject(ctx, a.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		PartSize:    partSize,
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.logger.Debug("archived stream", "sandbox", sandbox, "stream", stream, "key", key, "size", info.Size)
	return nil
}

// Writer returns a writer whose contents are uploaded as one object.
// Writes never fail: if the upload breaks, the rest of the stream is
// discarded, so the writer can sit in a TeeReader on a live stream.
// Close flushes the upload and returns its error.
func (a *Archiver) Writer(ctx context.Context, sandbox, stream string) io.WriteCloser {
	pr, pw := io.Pipe()
	w := &writer{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		err := a.Archive(ctx, sandbox, stream, pr)
		if err != nil {
			a.logger.Warn("stream archival failed", "sandbox", sandbox, "stream", stream, "error", err)
		}
		// Keep the producer unblocked whatever the store did.
		io.Copy(io.Discard, pr)
		w.err = err
	}()

	return w
}

type writer struct {
	pw   *io.PipeWriter
	once sync.Once
	done chan struct{}
	err  error
}

func (w *writer) Write(p []byte) (int, error) {
	w.pw.Write(p)
	return len(p), nil
}

func (w *writer) Close() error {
	w.once.Do(func() {
		w.pw.Close()
	})
	<-w.done
	return w.err
}
