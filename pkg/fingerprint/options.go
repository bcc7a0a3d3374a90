package fingerprint

// Options controls which parts of a request participate in the fingerprint.
type Options struct {
	// IncludeHeaders lists the (case-insensitive) header names that
	// participate. Ignored when IncludeAllHeaders is set.
	IncludeHeaders []string

	// IncludeAllHeaders makes every header eligible, subject to ExcludeHeaders.
	IncludeAllHeaders bool

	// ExcludeHeaders always wins over the include set.
	ExcludeHeaders []string

	IncludePath   bool
	IncludeQuery  bool
	IncludeBody   bool
	IncludeParams bool

	// NormalizeArrays deduplicates and sorts sequence values.
	NormalizeArrays bool

	// TrimStrings strips leading and trailing whitespace from string values.
	TrimStrings bool
}

// DefaultOptions returns the options used when a route does not configure any.
func DefaultOptions() Options {
	return Options{
		IncludeHeaders:  []string{"content-type", "accept"},
		ExcludeHeaders:  []string{"authorization", "cookie", "user-agent"},
		IncludePath:     true,
		IncludeQuery:    true,
		IncludeBody:     true,
		IncludeParams:   true,
		NormalizeArrays: true,
		TrimStrings:     true,
	}
}
