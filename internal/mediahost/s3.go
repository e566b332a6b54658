package mediahost

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kalambet/reelchat/internal/logging"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// PublicBaseURL serves objects without signing, e.g. a CDN or a
	// public-read bucket. The backend keeps the resulting URL for good, so
	// signed links with an expiry cannot stand in for it.
	PublicBaseURL string
}

// S3 stores videos in an S3-compatible bucket.
type S3 struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

func NewS3(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 media host: bucket is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 media host: public base url is required")
	}
	if cfg.Region == "" {
		cfg.Region = "eu-central-1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logging.WithComponent(logger, "s3"),
	}, nil
}

func (s *S3) Upload(ctx context.Context, src Source, req Request, progress ProgressFunc) (Asset, error) {
	key := objectKey(req.PublicID, src.Name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(src.Body, src.Size, progress),
		ContentLength: aws.Int64(src.Size),
	}
	if src.ContentType != "" {
		input.ContentType = aws.String(src.ContentType)
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		input.Metadata = map[string]string{"description": d}
	}

	s.logger.Info("uploading video", "key", key, "bytes", src.Size)
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Asset{}, fmt.Errorf("put object: %w", err)
	}

	return Asset{SecureURL: s.publicBaseURL + "/" + key, PublicID: req.PublicID}, nil
}

// objectKey keeps the file's extension so players can sniff the container.
func objectKey(publicID, filename string) string {
	id := strings.Trim(strings.ReplaceAll(publicID, " ", "_"), "/")
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || strings.HasSuffix(strings.ToLower(id), ext) {
		return "videos/" + id
	}
	return "videos/" + id + ext
}
