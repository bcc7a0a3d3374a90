package fingerprint

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// maxBodyBytes bounds how much of a request body is decoded for the fingerprint.
const maxBodyBytes = 1 << 20

// Source is the raw material a fingerprint is computed from.
type Source struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Params map[string]string
	Header http.Header

	// BodyUnreadable is set when a body was sent but could not be
	// represented: it exceeded the decode limit or did not parse as its
	// declared content type. Body is nil in that case, so the fingerprint
	// cannot tell such requests apart.
	BodyUnreadable bool
}

// Keyable reports whether the fingerprint of src under opts covers every
// included dimension.
func (src Source) Keyable(opts Options) bool {
	return !opts.IncludeBody || !src.BodyUnreadable
}

// Request is the canonical projection of a Source.
// Disabled dimensions hold neutral values so the encoded shape never changes.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   map[string]any    `json:"query"`
	Body    any               `json:"body"`
	Params  map[string]string `json:"params"`
	Headers map[string]string `json:"headers"`
}

// Map returns the projection as a generic JSON object.
func (r Request) Map() map[string]any {
	return map[string]any{
		"method":  r.Method,
		"path":    r.Path,
		"query":   r.Query,
		"body":    r.Body,
		"params":  r.Params,
		"headers": r.Headers,
	}
}

// FromHTTP builds a Source from an incoming request.
//
// JSON and URL-encoded form bodies are decoded and r.Body is replaced with
// an equivalent reader so downstream handlers can still consume it. Route
// params are the wildcards of the ServeMux pattern that matched r.
func FromHTTP(r *http.Request) Source {
	body, ok := readBody(r)
	return Source{
		Method:         r.Method,
		Path:           r.URL.Path,
		Query:          r.URL.Query(),
		Body:           body,
		Params:         pathParams(r),
		Header:         r.Header,
		BodyUnreadable: !ok,
	}
}

// readBody decodes the body of r. ok is false when a body was present but
// could not be decoded.
func readBody(r *http.Request) (body any, ok bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if err != nil || len(raw) > maxBodyBytes {
		return nil, false
	}
	if len(raw) == 0 {
		return nil, true
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		decoded, err := decodeGeneric(raw)
		if err != nil {
			return nil, false
		}
		return decoded, true
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, false
		}
		return valuesToMap(values), true
	default:
		return nil, true
	}
}

// pathParams resolves the wildcards of the pattern that matched r,
// e.g. "GET /companies/{number}/{rest...}".
func pathParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	pattern := r.Pattern
	for {
		open := strings.IndexByte(pattern, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(pattern[open:], '}')
		if end < 0 {
			break
		}
		name := strings.TrimSuffix(pattern[open+1:open+end], "...")
		pattern = pattern[open+end+1:]
		if name == "" || name == "$" {
			continue
		}
		params[name] = r.PathValue(name)
	}
	return params
}

func valuesToMap(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			out[key] = vals[0]
			continue
		}
		out[key] = slices.Clone(vals)
	}
	return out
}

// Serialize projects src onto its canonical Request under opts.
func Serialize(src Source, opts Options) Request {
	req := Request{
		Method:  src.Method,
		Query:   map[string]any{},
		Body:    map[string]any{},
		Params:  map[string]string{},
		Headers: map[string]string{},
	}

	if opts.IncludePath {
		req.Path = src.Path
	}

	if opts.IncludeQuery {
		for key, value := range valuesToMap(src.Query) {
			req.Query[key] = normalize(value, opts)
		}
	}

	if opts.IncludeBody && src.Body != nil {
		if body, err := toGeneric(src.Body); err == nil && body != nil {
			req.Body = normalize(body, opts)
		}
	}

	if opts.IncludeParams {
		for key, value := range src.Params {
			req.Params[key] = normalize(value, opts).(string)
		}
	}

	if opts.IncludeAllHeaders || len(opts.IncludeHeaders) > 0 {
		req.Headers = filterHeaders(src.Header, opts)
	}

	return req
}

func filterHeaders(header http.Header, opts Options) map[string]string {
	out := make(map[string]string)
	for name, values := range header {
		lower := strings.ToLower(name)
		if !opts.IncludeAllHeaders && !containsFold(opts.IncludeHeaders, lower) {
			continue
		}
		if containsFold(opts.ExcludeHeaders, lower) {
			continue
		}
		out[lower] = strings.Join(values, ", ")
	}
	return out
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}

// normalize trims strings and deduplicates+sorts sequences according to opts.
// It does not descend into objects.
func normalize(value any, opts Options) any {
	switch val := value.(type) {
	case string:
		if opts.TrimStrings {
			return strings.TrimSpace(val)
		}
		return val
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			if opts.TrimStrings {
				s = strings.TrimSpace(s)
			}
			out[i] = s
		}
		if opts.NormalizeArrays {
			sort.Strings(out)
			out = slices.Compact(out)
		}
		return out
	case []any:
		if !opts.NormalizeArrays {
			return val
		}
		return normalizeSequence(val, opts)
	default:
		return value
	}
}

func normalizeSequence(seq []any, opts Options) []any {
	type keyed struct {
		sortKey string
		value   any
	}

	seen := make(map[string]bool, len(seq))
	items := make([]keyed, 0, len(seq))
	for _, elem := range seq {
		if s, ok := elem.(string); ok && opts.TrimStrings {
			elem = strings.TrimSpace(s)
		}

		var sortKey string
		if s, ok := elem.(string); ok {
			sortKey = s
		} else {
			data, err := Canonicalize(elem)
			if err != nil {
				continue
			}
			sortKey = string(data)
		}

		// "1" and 1 share a sort key but are distinct values.
		dedupe := "j:" + sortKey
		if _, ok := elem.(string); ok {
			dedupe = "s:" + sortKey
		}
		if seen[dedupe] {
			continue
		}
		seen[dedupe] = true
		items = append(items, keyed{sortKey: sortKey, value: elem})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].sortKey < items[j].sortKey
	})

	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.value
	}
	return out
}
