package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

// Archiver persists raw payment webhook payloads to a Cloud Storage bucket
// for audit. Archival is best-effort: callers log failures instead of
// rejecting the notification.
type Archiver struct {
	client *gcs.Client
	bucket string
	clock  func() time.Time
}

// ArchiverOption customises the archiver.
type ArchiverOption func(*Archiver)

// WithArchiverClock overrides the clock used for object naming.
func WithArchiverClock(clock func() time.Time) ArchiverOption {
	return func(a *Archiver) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewArchiver constructs an Archiver writing into the given bucket.
func NewArchiver(client *gcs.Client, bucket string, opts ...ArchiverOption) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	archiver := &Archiver{
		client: client,
		bucket: bucket,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(archiver)
	}
	return archiver, nil
}

// ArchiveWebhookPayload stores the raw payload keyed by the external payment
// id and returns the object path.
func (a *Archiver) ArchiveWebhookPayload(ctx context.Context, externalID string, payload []byte) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("storage archiver: not initialised")
	}
	object, err := WebhookArchivePath(externalID, a.clock().UTC())
	if err != nil {
		return "", err
	}

	writer := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage archiver: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage archiver: close %s: %w", object, err)
	}
	return object, nil
}

// WebhookArchivePath composes the object key for an archived notification.
// Payloads are partitioned by receive date so retention policies can prune
// whole prefixes.
func WebhookArchivePath(externalID string, receivedAt time.Time) (string, error) {
	id := sanitizeObjectComponent(externalID)
	if id == "" {
		return "", errors.New("storage archiver: external id is required")
	}
	if receivedAt.IsZero() {
		return "", errors.New("storage archiver: receive time is required")
	}
	return fmt.Sprintf("webhooks/payments/%s/%s.json", receivedAt.UTC().Format("2006/01/02"), id), nil
}

func sanitizeObjectComponent(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
