// Package media stores film and photo files in an S3-compatible object
// store. Transcoding and thumbnailing happen elsewhere; the API only
// hands out keys and presigned URLs.
package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"streetwatch/api/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketVideos string
	BucketPhotos string
	UseSSL       bool
	URLTTL       time.Duration
}

type Storage struct {
	client *minio.Client
	config Config
}

func NewStorage(config Config) (*Storage, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create media client: %w", err)
	}
	return &Storage{client: client, config: config}, nil
}

// EnsureBuckets creates the video and photo buckets if missing.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.config.BucketVideos, s.config.BucketPhotos} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// NewObjectKey builds a per-owner object key preserving the upload's
// file extension.
func NewObjectKey(ownerID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ownerID == "" {
		ownerID = "anonymous"
	}
	return fmt.Sprintf("%s/%s%s", ownerID, util.NewID(""), ext)
}

func (s *Storage) bucketFor(mediaType string) (string, error) {
	switch mediaType {
	case "video":
		return s.config.BucketVideos, nil
	case "photo", "thumbnail":
		return s.config.BucketPhotos, nil
	default:
		return "", fmt.Errorf("unknown media type %q", mediaType)
	}
}

// UploadURL returns a presigned PUT URL for a new object.
func (s *Storage) UploadURL(ctx context.Context, mediaType, objectKey string) (string, error) {
	bucket, err := s.bucketFor(mediaType)
	if err != nil {
		return "", err
	}
	presigned, err := s.client.PresignedPutObject(ctx, bucket, objectKey, s.config.URLTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return presigned.String(), nil
}

// DownloadURL returns a presigned GET URL for an existing object.
func (s *Storage) DownloadURL(ctx context.Context, mediaType, objectKey string) (string, error) {
	bucket, err := s.bucketFor(mediaType)
	if err != nil {
		return "", err
	}
	presigned, err := s.client.PresignedGetObject(ctx, bucket, objectKey, s.config.URLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return presigned.String(), nil
}

// Remove deletes an object, used when content is deleted.
func (s *Storage) Remove(ctx context.Context, mediaType, objectKey string) error {
	bucket, err := s.bucketFor(mediaType)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
