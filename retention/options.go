package retention

type options struct {
	dryRun   bool
	onDelete func(Deletion)
	pending  *Entry
}

type Option func(o *options)

// Log the files that would be deleted without removing them.
func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// Called after every successful deletion.
func WithOnDelete(fn func(Deletion)) Option {
	return func(o *options) {
		o.onDelete = fn
	}
}

// WithPending counts a file that a dry run would have written at path as
// the newest artifact of the directory. Only used with WithDryRun.
func WithPending(path string, size int64) Option {
	return func(o *options) {
		o.pending = &Entry{Path: path, Size: size}
	}
}
