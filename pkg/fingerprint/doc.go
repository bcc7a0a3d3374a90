// Package fingerprint derives stable cache keys from HTTP requests.
//
// A request is first projected onto a canonical Request (method, path,
// query, body, route params and a filtered subset of headers). The
// projection is then encoded as key-sorted JSON and folded into a short
// base-36 hash:
//
//	key := fingerprint.FingerprintRequest(r, fingerprint.DefaultOptions())
//
// Two requests that only differ in map key order, excluded headers, or
// (with NormalizeArrays) the order and duplication of repeated query
// values produce the same key. The hash is a 32-bit rolling hash and is
// not collision resistant; it is meant for cache key economy only.
package fingerprint
