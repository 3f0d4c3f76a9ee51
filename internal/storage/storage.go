package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Archive stores JSON documents in remote object storage.
type Archive interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Disabled is used when no bucket is configured. Writes are dropped.
type Disabled struct{}

func (Disabled) PutJSON(context.Context, string, any) (string, error) {
	return "", nil
}

func (Disabled) ListObjects(context.Context, string) ([]ObjectInfo, error) {
	return nil, nil
}

var _ Archive = Disabled{}
