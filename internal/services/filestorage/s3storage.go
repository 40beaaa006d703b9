package filestorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/utils/pathutil"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3FileStorage(ctx context.Context, cfg *config.Config) (*S3FileStorage, error) {
	if cfg.S3 == nil {
		return nil, config.ErrS3NotConfigured
	}

	region := cfg.S3.Region
	if region == "" {
		region = "auto"
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(
		ctx,
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.S3.EndpointUrl)
		}
		o.UsePathStyle = cfg.S3.PathStyle
	})

	return &S3FileStorage{
		client: s3Client,
		cfg:    cfg.S3,
	}, nil
}

func (u *S3FileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	key, err := u.objectKey(file.Key)
	if err != nil {
		return "", err
	}

	mtype := file.ContentType
	if mtype == "" {
		mtype = mimetype.Detect(file.Content).String()
	}

	// Variants are public catalog assets.
	input := s3.PutObjectInput{
		Key:         aws.String(key),
		ContentType: aws.String(mtype),
		Bucket:      aws.String(u.cfg.Bucket),
		Body:        bytes.NewReader(file.Content),
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if _, err := u.client.PutObject(ctx, &input); err != nil {
		return "", err
	}

	return publicObjectURL(u.cfg, key), nil
}

func (u *S3FileStorage) Delete(ctx context.Context, key string) error {
	key, err := u.objectKey(key)
	if err != nil {
		return err
	}

	_, err = u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	})
	return err
}

func (u *S3FileStorage) GetFile(ctx context.Context, key string) (*FileInfo, error) {
	objectKey, err := u.objectKey(key)
	if err != nil {
		return nil, err
	}

	object, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	defer object.Body.Close()

	content, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, err
	}

	contentType := ""
	if object.ContentType != nil {
		contentType = *object.ContentType
	}

	return &FileInfo{
		Key:         key,
		Content:     content,
		ContentType: contentType,
	}, nil
}

func (u *S3FileStorage) objectKey(key string) (string, error) {
	clean, ok := pathutil.CleanKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	folder := strings.Trim(u.cfg.Folder, "/")
	if folder == "" {
		return clean, nil
	}

	return fmt.Sprintf("%s/%s", folder, clean), nil
}

func publicObjectURL(cfg *config.S3Config, key string) string {
	if cfg.VanityUrl != "" {
		vanityUrl := strings.TrimSuffix(cfg.VanityUrl, "/")
		return fmt.Sprintf("%s/%s", vanityUrl, key)
	}

	switch {
	case strings.Contains(cfg.EndpointUrl, "digitaloceanspaces.com"):
		return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", cfg.Bucket, cfg.Region, key)

	case strings.Contains(cfg.EndpointUrl, "amazonaws.com"):
		endpoint := strings.TrimPrefix(cfg.EndpointUrl, "https://")
		endpoint = strings.TrimSuffix(endpoint, "/")
		return fmt.Sprintf("https://%s.%s/%s", cfg.Bucket, endpoint, key)

	default:
		// R2, MinIO and friends: path style under the endpoint.
		endpoint := strings.TrimSuffix(cfg.EndpointUrl, "/")
		return fmt.Sprintf("%s/%s/%s", endpoint, cfg.Bucket, key)
	}
}
