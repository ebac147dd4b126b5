package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client wraps S3-compatible object storage for survey archival
type S3Client struct {
	client   *s3.Client
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Client creates a new S3 client for the survey archive bucket
func NewS3Client(cfg S3Config) (*S3Client, error) {
	logger := slog.With("endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	logger.Info("initializing S3 client")

	// Custom resolver so R2-style endpoints work too
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &smithy.GenericAPIError{Code: "UnknownEndpoint"}
	})

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 5 * time.Minute,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithHTTPClient(httpClient),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(s3Client)

	logger.Info("S3 client initialized successfully")

	return &S3Client{
		client:   s3Client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: uploader,
	}, nil
}

// archiveKey builds the dated bucket key for one survey file.
func archiveKey(prefix, date, file string) string {
	return path.Join(prefix, "surveys", date, filepath.Base(file))
}

// ArchiveSurveys uploads each input file to the archive bucket under a
// dated key, then spot-checks each upload with a HeadObject and the day's
// listing. Called only after a committed import; failures are logged and
// do not fail the run.
func (s *S3Client) ArchiveSurveys(ctx context.Context, files []string) {
	date := time.Now().UTC().Format("2006-01-02")

	uploaded := 0
	for _, file := range files {
		key := archiveKey(s.prefix, date, file)
		size, err := s.UploadFile(ctx, file, key)
		if err != nil {
			slog.Warn("survey archive upload failed", "file", file, "key", key, "error", err)
			continue
		}
		uploaded++

		remoteSize, exists, err := s.HeadObject(ctx, key)
		switch {
		case err != nil:
			slog.Warn("archived survey spot check failed", "key", key, "error", err)
		case !exists:
			slog.Warn("archived survey missing on spot check", "key", key)
		case remoteSize != size:
			slog.Warn("archived survey size mismatch", "key", key, "local_bytes", size, "remote_bytes", remoteSize)
		default:
			slog.Info("survey archived", "key", key, "bytes", size)
		}
	}

	keys, err := s.ListArchived(ctx, date)
	if err != nil {
		slog.Warn("failed to list archived surveys", "date", date, "error", err)
		return
	}
	if len(keys) < uploaded {
		slog.Warn("archive listing shows fewer objects than uploaded", "date", date, "listed", len(keys), "uploaded", uploaded)
		return
	}
	slog.Debug("archive verified", "date", date, "listed", len(keys), "uploaded", uploaded)
}

// UploadFile uploads a single file
func (s *S3Client) UploadFile(ctx context.Context, filePath, s3Key string) (int64, error) {
	logger := slog.With("file_path", filePath, "s3_key", s3Key)
	logger.Debug("uploading file")

	info, err := os.Stat(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	})
	if err != nil {
		logger.Error("upload failed", "error", err)
		return 0, fmt.Errorf("failed to upload file: %w", err)
	}

	logger.Debug("file uploaded", "location", result.Location)
	return info.Size(), nil
}

// ListArchived lists archived survey keys under the given date prefix
func (s *S3Client) ListArchived(ctx context.Context, date string) ([]string, error) {
	prefix := path.Join(s.prefix, "surveys", date) + "/"
	logger := slog.With("prefix", prefix)
	logger.Debug("listing archived surveys")

	var objects []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, *obj.Key)
		}
	}

	logger.Debug("objects listed", "count", len(objects))
	return objects, nil
}

// HeadObject checks if an object exists and returns its size.
// Returns (size, exists, error). A missing object is not an error.
func (s *S3Client) HeadObject(ctx context.Context, s3Key string) (int64, bool, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if ok := errors.As(err, &notFound); ok {
			return 0, false, nil
		}
		var apiErr smithy.APIError
		if ok := errors.As(err, &apiErr); ok && apiErr.ErrorCode() == "NotFound" {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to head object %s: %w", s3Key, err)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return size, true, nil
}
