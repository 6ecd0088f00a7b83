package convert

import (
	"context"
	"time"

	"xlsmconv/internal/transcode"
)

// Fetcher retrieves the complete byte content of a source reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Transcoder decodes a macro-enabled workbook into its values-only form and
// re-encodes it as a macro-free container.
type Transcoder interface {
	Decode(src []byte) (*transcode.Workbook, error)
	Encode(wb *transcode.Workbook) ([]byte, error)
}

// Publisher writes output bytes durably under an object name, overwriting
// any prior object at that exact name.
type Publisher interface {
	Put(ctx context.Context, name string, data []byte) error
}

// SignedLink is a time-bounded read URL for one published object. It carries
// no revocation state; validity ends at ExpiresAt or when the underlying
// credential does.
type SignedLink struct {
	URL       string
	ExpiresAt time.Time
}

// LinkIssuer mints a read-only signed URL for a published object.
type LinkIssuer interface {
	SignedReadURL(ctx context.Context, name string, ttl time.Duration) (SignedLink, error)
}

// Store is the output store: publish plus link issuance against the same
// container.
type Store interface {
	Publisher
	LinkIssuer
}
