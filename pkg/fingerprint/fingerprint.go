package fingerprint

import "net/http"

// Fingerprint returns the cache key for src under opts.
// It never fails: if the projection cannot be encoded, the key is derived
// from a neutral projection carrying only the method and path.
func Fingerprint(src Source, opts Options) string {
	data, err := Canonicalize(Serialize(src, opts).Map())
	if err != nil {
		data, _ = Canonicalize(Serialize(Source{Method: src.Method, Path: src.Path}, opts).Map())
	}
	return Hash(string(data))
}

// FingerprintRequest is Fingerprint(FromHTTP(r), opts).
func FingerprintRequest(r *http.Request, opts Options) string {
	return Fingerprint(FromHTTP(r), opts)
}
