package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	Bucket string
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// GCSStore keeps snapshots in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects to Cloud Storage.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return nil, fmt.Errorf("gcs: service account key: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return NewGCSStoreWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewGCSStoreWithClient wraps an existing client.
func NewGCSStoreWithClient(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSStore) object(m content.Marketplace) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(ObjectName(s.prefix, m))
}

// Location returns the gs:// URL of the prefix.
func (s *GCSStore) Location() string {
	return "gs://" + s.bucket + "/" + s.prefix
}

// Download copies the object to dest.
func (s *GCSStore) Download(ctx context.Context, m content.Marketplace, dest string) error {
	r, err := s.object(m).NewReader(ctx)
	if err != nil {
		return s.mapErr(m, err)
	}
	defer r.Close()
	return writeAtomic(dest, r)
}

// Upload copies src to the object.
func (s *GCSStore) Upload(ctx context.Context, m content.Marketplace, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	w := s.object(m).NewWriter(ctx)
	w.ContentType = "application/zip"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("gcs: upload %s: %w", ObjectName(s.prefix, m), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finish upload %s: %w", ObjectName(s.prefix, m), err)
	}
	return nil
}

// Revision returns the object generation.
func (s *GCSStore) Revision(ctx context.Context, m content.Marketplace) (string, error) {
	attrs, err := s.object(m).Attrs(ctx)
	if err != nil {
		return "", s.mapErr(m, err)
	}
	return strconv.FormatInt(attrs.Generation, 10), nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) mapErr(m content.Marketplace, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, s.Location(), m)
	}
	return fmt.Errorf("gcs: %s: %w", ObjectName(s.prefix, m), err)
}
