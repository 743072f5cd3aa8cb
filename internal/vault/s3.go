package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"shelf/internal/backup"
)

const versionMetaKey = "version"

// S3Options configures an S3Vault.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint points the client at an S3-compatible store such as MinIO.
	// Path-style addressing is used whenever it is set.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Vault stores backups in an S3 bucket using the same layout as
// FileSystemVault, under an optional key prefix. Metadata versions are kept
// in the object's user metadata.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault creates a vault backed by the bucket in opts.
func NewS3Vault(ctx context.Context, name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:     name,
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (v *S3Vault) Name() string {
	return v.name
}

func (v *S3Vault) contentKey(checksum string) string {
	return path.Join(v.prefix, "content", checksum)
}

func (v *S3Vault) metadataKey(libraryID, name string) string {
	return path.Join(v.prefix, "metadata", libraryID, name)
}

func (v *S3Vault) PutContent(checksum string, r io.Reader, size int64) error {
	ok, err := v.HasContent(checksum)
	if err != nil {
		return err
	}
	if ok {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}
	return v.put(v.contentKey(checksum), r, size, nil)
}

func (v *S3Vault) GetContent(checksum string, w io.Writer) error {
	return v.get(v.contentKey(checksum), w, "content "+checksum)
}

func (v *S3Vault) HasContent(checksum string) (bool, error) {
	_, err := v.head(v.contentKey(checksum))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, backup.ErrMissing) {
		return false, nil
	}
	return false, err
}

func (v *S3Vault) PutMetadata(libraryID, name string, r io.Reader, size int64, version int64) error {
	meta := map[string]string{versionMetaKey: strconv.FormatInt(version, 10)}
	return v.put(v.metadataKey(libraryID, name), r, size, meta)
}

func (v *S3Vault) GetMetadata(libraryID, name string, w io.Writer) error {
	return v.get(v.metadataKey(libraryID, name), w, fmt.Sprintf("metadata %q for library %s", name, libraryID))
}

// GetMetadataVersion returns 0 if the item was never stored.
func (v *S3Vault) GetMetadataVersion(libraryID, name string) (int64, error) {
	out, err := v.head(v.metadataKey(libraryID, name))
	if errors.Is(err, backup.ErrMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) put(key string, r io.Reader, size int64, meta map[string]string) error {
	cr := &countingReader{r: r}
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     cr,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	if cr.n != size {
		v.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(v.bucket),
			Key:    aws.String(key),
		})
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, cr.n)
	}
	return nil
}

func (v *S3Vault) get(key string, w io.Writer, what string) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%s: %w", what, backup.ErrMissing)
		}
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) head(key string) (*s3.HeadObjectOutput, error) {
	out, err := v.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("object %s: %w", key, backup.ErrMissing)
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}
	return out, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ backup.Vault = (*S3Vault)(nil)
