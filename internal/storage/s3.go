package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive writes documents to Amazon S3 (or compatible APIs) under a key prefix.
type S3Archive struct {
	lister    s3.ListObjectsV2APIClient
	uploader  uploader
	bucket    string
	keyPrefix string
}

func NewS3Archive(client *s3.Client, bucket, keyPrefix string) (*S3Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	return &S3Archive{
		lister:    client,
		uploader:  manager.NewUploader(client),
		bucket:    bucket,
		keyPrefix: strings.Trim(keyPrefix, "/"),
	}, nil
}

func (s *S3Archive) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	switch {
	case key == "":
		return s.keyPrefix
	case s.keyPrefix == "":
		return key
	}
	return s.keyPrefix + "/" + key
}

// PutJSON marshals v and uploads it, returning the s3:// location.
func (s *S3Archive) PutJSON(ctx context.Context, key string, v any) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}

	fullKey := s.objectKey(key)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fullKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, fullKey), nil
}

func (s *S3Archive) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if p := s.objectKey(strings.TrimSpace(prefix)); p != "" {
		input.Prefix = aws.String(p)
	}

	var objects []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(s.lister, input)
	for pages.HasMorePages() {
		output, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range output.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}
	}
	return objects, nil
}

var _ Archive = (*S3Archive)(nil)
