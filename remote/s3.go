package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/config"
)

const defaultRegion = "us-east-1"

// ObjectAPI is the part of the S3 client the mirror needs.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads the archive tree to a bucket. Objects already present
// with the same size are left alone.
type S3Mirror struct {
	API    ObjectAPI
	Bucket string
	Prefix string
	Logger zerolog.Logger
}

func NewS3Mirror(ctx context.Context, cfg config.S3, logger zerolog.Logger) (*S3Mirror, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
	}
	// Without static keys the default chain (environment, shared files,
	// instance roles) applies.
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Mirror{
		API:    client,
		Bucket: cfg.Bucket,
		Prefix: strings.Trim(cfg.Prefix, "/"),
		Logger: logger,
	}, nil
}

func (m *S3Mirror) Name() string {
	return "s3"
}

// Key returns the object key for a file at rel below the mirrored root.
func (m *S3Mirror) Key(rel string) string {
	return path.Join(m.Prefix, filepath.ToSlash(rel))
}

func (m *S3Mirror) Sync(ctx context.Context, root string) error {
	startTime := time.Now()
	m.Logger.Info().Str("bucket", m.Bucket).Str("prefix", m.Prefix).Msg("start remote sync")

	var uploaded, unchanged, failed int
	var uploadedBytes int64

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			m.Logger.Warn().Err(err).Str("path", p).Msg("could not walk archive tree")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Hidden entries are in-flight temporary files.
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		logger := m.Logger.With().Str("path", p).Logger()

		n, err := m.syncFile(ctx, p, m.Key(rel))
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("could not upload file")
			failed++
		case n < 0:
			unchanged++
		default:
			uploaded++
			uploadedBytes += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.Logger.Info().
		Int("uploaded", uploaded).
		Int("unchanged", unchanged).
		Int("failed", failed).
		Str("uploaded_size", units.HumanSize(float64(uploadedBytes))).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done remote sync")

	if failed > 0 {
		return fmt.Errorf("%d files could not be uploaded", failed)
	}
	return nil
}

// syncFile returns the uploaded size, or -1 when the object is already up
// to date.
func (m *S3Mirror) syncFile(ctx context.Context, p, key string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	head, err := m.API.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		if aws.ToInt64(head.ContentLength) == size {
			return -1, nil
		}
	case !isNotFound(err):
		return 0, fmt.Errorf("could not check object %s: %w", key, err)
	}

	_, err = m.API.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return 0, fmt.Errorf("could not upload object %s: %w", key, err)
	}
	m.Logger.Debug().Str("key", key).Int64("size", size).Msg("uploaded object")
	return size, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
