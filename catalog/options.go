package catalog

type copiesOptions struct {
	tier    string
	logical string
	limit   int
}

type CopiesOption func(*copiesOptions)

// Only return copies of one tier.
func WithTier(tier string) CopiesOption {
	return func(o *copiesOptions) {
		o.tier = tier
	}
}

// Only return copies of one logical name.
func WithLogical(logical string) CopiesOption {
	return func(o *copiesOptions) {
		o.logical = logical
	}
}

// Limit the number of copies returned.
func WithLimit(limit int) CopiesOption {
	return func(o *copiesOptions) {
		o.limit = limit
	}
}
