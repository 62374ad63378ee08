package port

import (
	"context"
	"io"
)

// UploadInput is the request for an object upload.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// UploadOutput is the result of an object upload.
type UploadOutput struct {
	Location string
	ETag     string
}

// ObjectStorage abstracts the blob store used for archiving originals and for
// browser-direct uploads on the large-file path.
type ObjectStorage interface {
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
	GetPresignedPutURL(ctx context.Context, bucket, key, contentType string, expirySeconds int64) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}
