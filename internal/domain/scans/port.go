package scans

import "context"

// Runner port (interface for scanner execution). Expected scan failures
// (spawn error, timeout, non-zero exit) come back inside the Outcome; the
// error return is reserved for unrecoverable conditions such as failing to
// create a temporary file.
type Runner interface {
	Scan(ctx context.Context, target string, opts *Options) (*Outcome, error)
}

// BundleResolver port (interface for rules bundle resolution). Resolve
// returns a local filesystem path to the named bundle, fetching and caching
// it if necessary.
type BundleResolver interface {
	Resolve(ctx context.Context, bundleID string) (string, error)
}
