// Package api defines the backend-agnostic browser interfaces.
package api

import (
	"context"
	"time"
)

// Browser is the capability set every backend provides.
type Browser interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string, args ...any) (any, error)
}

// Tab is implemented by backends that drive a single tab and support more
// than the common set.
type Tab interface {
	Browser

	Type(ctx context.Context, selector, text string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	Content(ctx context.Context) (string, error)
}
