package harvest

import (
	"context"
	"io"
	"time"
)

// Browser is a single rendered-page session.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	PageSource(ctx context.Context) (string, error)
	// Links returns absolute hyperlink targets of the current page in DOM order.
	Links(ctx context.Context) ([]string, error)
	ScrollBy(ctx context.Context, dy int) error
	// AtBottom reports whether the viewport bottom reached the document scroll height.
	AtBottom(ctx context.Context) (bool, error)
	Close() error
}

// Launcher starts a Browser session.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// TextExtractor converts page markup to plain text.
type TextExtractor interface {
	Extract(markup string) (string, error)
}

// IndexStore is the append-only ledger of harvested identifiers.
type IndexStore interface {
	// LoadIdentifiers returns one entry per row in order; blank rows are "".
	LoadIdentifiers(ctx context.Context) ([]string, error)
	// AppendIdentifiers writes ids one per row starting at row offset+1.
	AppendIdentifiers(ctx context.Context, offset int, ids []string) error
}

// BlobStore writes artifacts into its destination container and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

// ReadyChecker is implemented by blob stores that can verify their destination.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Publisher pushes the run summary to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Sleeper blocks for a duration.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Seen reports whether an identifier was already harvested.
type Seen interface {
	Contains(id string) bool
}
