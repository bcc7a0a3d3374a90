package fingerprint

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "0"},
		{"a", "2p"},
		{"ab", "2e9"},
		{"hello", "1n1e4y"},
		{"hello world", "to5x38"},
		{"cache key", "-96iibj"},
		{"registry-gateway", "-rxzbrg"},
		{"é€😀", "9z1xi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Hash(tt.input); got != tt.want {
				t.Errorf("Hash(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{
			name:  "nil",
			input: nil,
			want:  "null",
		},
		{
			name: "nested keys sorted",
			input: map[string]any{
				"b": 1,
				"a": map[string]any{"d": []any{2, 1}, "c": "x<y"},
			},
			want: `{"a":{"c":"x<y","d":[2,1]},"b":1}`,
		},
		{
			name:  "string map",
			input: map[string]string{"z": "1", "m": "2"},
			want:  `{"m":"2","z":"1"}`,
		},
		{
			name:  "string slice keeps order",
			input: []string{"red", "blue"},
			want:  `["red","blue"]`,
		},
		{
			name: "struct goes through JSON",
			input: struct {
				Zeta  string `json:"zeta"`
				Alpha int    `json:"alpha"`
			}{Zeta: "z", Alpha: 1},
			want: `{"alpha":1,"zeta":"z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if err != nil {
				t.Fatalf("Canonicalize() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Canonicalize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	var a, b any
	if err := json.Unmarshal([]byte(`{"x":{"q":1,"p":[{"k":2,"j":1}]},"w":true}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"w":true,"x":{"p":[{"j":1,"k":2}],"q":1}}`), &b); err != nil {
		t.Fatal(err)
	}

	ca, _ := Canonicalize(a)
	cb, _ := Canonicalize(b)
	if string(ca) != string(cb) {
		t.Errorf("canonical forms differ: %s vs %s", ca, cb)
	}
}

func TestSerialize_NeutralDimensions(t *testing.T) {
	src := Source{
		Method: "POST",
		Path:   "/widgets",
		Query:  url.Values{"tag": {"blue"}},
		Body:   map[string]any{"a": 1},
		Params: map[string]string{"id": "7"},
		Header: http.Header{"Accept": {"application/json"}},
	}

	got := Serialize(src, Options{})

	want := Request{
		Method:  "POST",
		Path:    "",
		Query:   map[string]any{},
		Body:    map[string]any{},
		Params:  map[string]string{},
		Headers: map[string]string{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Serialize() = %#v, want %#v", got, want)
	}
}

func TestSerialize_Normalization(t *testing.T) {
	src := Source{
		Method: "GET",
		Path:   "/widgets",
		Query: url.Values{
			"tag":  {"red", " blue", "red"},
			"name": {"  acme  "},
		},
		Params: map[string]string{"id": " 42 "},
	}

	got := Serialize(src, DefaultOptions())

	if tags, ok := got.Query["tag"].([]string); !ok || !reflect.DeepEqual(tags, []string{"blue", "red"}) {
		t.Errorf("Query[tag] = %#v, want [blue red]", got.Query["tag"])
	}
	if got.Query["name"] != "acme" {
		t.Errorf("Query[name] = %#v, want %q", got.Query["name"], "acme")
	}
	if got.Params["id"] != "42" {
		t.Errorf("Params[id] = %q, want %q", got.Params["id"], "42")
	}
	if body, ok := got.Body.(map[string]any); !ok || len(body) != 0 {
		t.Errorf("Body = %#v, want empty object", got.Body)
	}
}

func TestSerialize_NormalizeDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.NormalizeArrays = false
	opts.TrimStrings = false

	src := Source{
		Method: "GET",
		Query:  url.Values{"tag": {"red", "blue", "red"}, "q": {" x "}},
	}

	got := Serialize(src, opts)

	if !reflect.DeepEqual(got.Query["tag"], []string{"red", "blue", "red"}) {
		t.Errorf("Query[tag] = %#v, want original order", got.Query["tag"])
	}
	if got.Query["q"] != " x " {
		t.Errorf("Query[q] = %#v, want untrimmed", got.Query["q"])
	}
}

func TestSerialize_BodySequence(t *testing.T) {
	src := Source{
		Method: "POST",
		Body:   []any{"b", map[string]any{"k": 1}, "a", "b", map[string]any{"k": 1}},
	}

	got := Serialize(src, DefaultOptions())

	want := []any{"a", "b", map[string]any{"k": 1}}
	if !reflect.DeepEqual(got.Body, want) {
		t.Errorf("Body = %#v, want %#v", got.Body, want)
	}
}

func TestFilterHeaders(t *testing.T) {
	header := http.Header{
		"Accept":        {"application/json", "text/plain"},
		"Content-Type":  {"application/json"},
		"Authorization": {"Bearer secret"},
		"User-Agent":    {"curl/8"},
		"X-Trace":       {"abc"},
	}

	tests := []struct {
		name string
		opts Options
		want map[string]string
	}{
		{
			name: "default include list",
			opts: DefaultOptions(),
			want: map[string]string{
				"accept":       "application/json, text/plain",
				"content-type": "application/json",
			},
		},
		{
			name: "all headers minus excludes",
			opts: Options{
				IncludeAllHeaders: true,
				ExcludeHeaders:    []string{"authorization", "user-agent"},
			},
			want: map[string]string{
				"accept":       "application/json, text/plain",
				"content-type": "application/json",
				"x-trace":      "abc",
			},
		},
		{
			name: "exclude wins over include",
			opts: Options{
				IncludeHeaders: []string{"authorization", "x-trace"},
				ExcludeHeaders: []string{"authorization"},
			},
			want: map[string]string{"x-trace": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterHeaders(header, tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filterHeaders() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprint_Equivalence(t *testing.T) {
	base := func() Source {
		return Source{
			Method: "GET",
			Path:   "/widgets",
			Query:  url.Values{"tag": {"blue", "red"}},
			Header: http.Header{"Accept": {"application/json"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Source)
		opts   Options
		equal  bool
	}{
		{
			name:   "query array order",
			mutate: func(s *Source) { s.Query = url.Values{"tag": {"red", "blue"}} },
			opts:   DefaultOptions(),
			equal:  true,
		},
		{
			name:   "duplicate query values",
			mutate: func(s *Source) { s.Query = url.Values{"tag": {"red", "blue", "red"}} },
			opts:   DefaultOptions(),
			equal:  true,
		},
		{
			name:   "excluded header differs",
			mutate: func(s *Source) { s.Header.Set("Authorization", "Bearer other") },
			opts:   DefaultOptions(),
			equal:  true,
		},
		{
			name:   "untracked header differs",
			mutate: func(s *Source) { s.Header.Set("X-Forwarded-For", "10.0.0.1") },
			opts:   DefaultOptions(),
			equal:  true,
		},
		{
			name:   "different path",
			mutate: func(s *Source) { s.Path = "/gadgets" },
			opts:   DefaultOptions(),
			equal:  false,
		},
		{
			name:   "different method",
			mutate: func(s *Source) { s.Method = "POST" },
			opts:   DefaultOptions(),
			equal:  false,
		},
		{
			name:   "included header differs",
			mutate: func(s *Source) { s.Header.Set("Accept", "text/csv") },
			opts:   DefaultOptions(),
			equal:  false,
		},
		{
			name:   "query array order without normalization",
			mutate: func(s *Source) { s.Query = url.Values{"tag": {"red", "blue"}} },
			opts: func() Options {
				o := DefaultOptions()
				o.NormalizeArrays = false
				return o
			}(),
			equal: false,
		},
		{
			name:   "path ignored when excluded",
			mutate: func(s *Source) { s.Path = "/gadgets" },
			opts: func() Options {
				o := DefaultOptions()
				o.IncludePath = false
				return o
			}(),
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			b := base()
			tt.mutate(&b)

			ka := Fingerprint(a, tt.opts)
			kb := Fingerprint(b, tt.opts)
			if (ka == kb) != tt.equal {
				t.Errorf("Fingerprint equality = %v (%s vs %s), want %v", ka == kb, ka, kb, tt.equal)
			}
		})
	}
}

func TestFingerprint_Idempotent(t *testing.T) {
	src := Source{
		Method: "POST",
		Path:   "/search",
		Query:  url.Values{"q": {"acme"}},
		Body:   map[string]any{"filters": map[string]any{"status": "active"}},
	}

	first := Fingerprint(src, DefaultOptions())
	for i := 0; i < 10; i++ {
		if got := Fingerprint(src, DefaultOptions()); got != first {
			t.Fatalf("Fingerprint() call %d = %v, want %v", i, got, first)
		}
	}
}

func TestFingerprint_UnencodableBodyDegrades(t *testing.T) {
	src := Source{Method: "POST", Path: "/x", Body: map[string]any{"ch": make(chan int)}}

	// Must not panic and must still be deterministic.
	a := Fingerprint(src, DefaultOptions())
	b := Fingerprint(src, DefaultOptions())
	if a == "" || a != b {
		t.Errorf("Fingerprint() = %q / %q, want stable non-empty key", a, b)
	}
}

func TestFromHTTP_JSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/search?b=2&a=1", strings.NewReader(`{"z":1,"a":"x"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	src := FromHTTP(req)

	body, ok := src.Body.(map[string]any)
	if !ok {
		t.Fatalf("Body = %#v, want object", src.Body)
	}
	if body["a"] != "x" {
		t.Errorf("Body[a] = %v, want x", body["a"])
	}

	// Body must still be readable downstream.
	rest, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(rest) != `{"z":1,"a":"x"}` {
		t.Errorf("restored body = %s", rest)
	}
}

func TestFromHTTP_BodyUnreadable(t *testing.T) {
	oversized := `{"q":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{name: "oversized json", contentType: "application/json", body: oversized, want: true},
		{name: "oversized plain text", contentType: "text/plain", body: oversized, want: true},
		{name: "malformed json", contentType: "application/json", body: `{"q":`, want: true},
		{name: "malformed form", contentType: "application/x-www-form-urlencoded", body: "q=%zz", want: true},
		{name: "valid json", contentType: "application/json", body: `{"q":"acme"}`, want: false},
		{name: "unparsed media type", contentType: "text/plain", body: "hello", want: false},
		{name: "empty body", contentType: "application/json", body: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			src := FromHTTP(req)
			if src.BodyUnreadable != tt.want {
				t.Errorf("BodyUnreadable = %v, want %v", src.BodyUnreadable, tt.want)
			}
			if got := src.Keyable(DefaultOptions()); got == tt.want {
				t.Errorf("Keyable(DefaultOptions()) = %v, want %v", got, !tt.want)
			}
			if !src.Keyable(Options{IncludePath: true}) {
				t.Error("Keyable() = false with the body excluded")
			}

			rest, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatalf("read restored body: %v", err)
			}
			if len(rest) != len(tt.body) {
				t.Errorf("restored body length = %d, want %d", len(rest), len(tt.body))
			}
		})
	}
}

func TestFromHTTP_FormBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("tag=a&tag=b&name=acme"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	src := FromHTTP(req)

	want := map[string]any{"tag": []string{"a", "b"}, "name": "acme"}
	if !reflect.DeepEqual(src.Body, want) {
		t.Errorf("Body = %#v, want %#v", src.Body, want)
	}
}

func TestFromHTTP_PathParams(t *testing.T) {
	var got Source
	mux := http.NewServeMux()
	mux.HandleFunc("GET /companies/{number}/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		got = FromHTTP(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/companies/0123/officers/list", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	want := map[string]string{"number": "0123", "rest": "officers/list"}
	if !reflect.DeepEqual(got.Params, want) {
		t.Errorf("Params = %v, want %v", got.Params, want)
	}
}

func TestFingerprintRequest_QueryOrder(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/widgets?tag=blue&tag=red", nil)
	b := httptest.NewRequest(http.MethodGet, "/widgets?tag=red&tag=blue", nil)

	if FingerprintRequest(a, DefaultOptions()) != FingerprintRequest(b, DefaultOptions()) {
		t.Error("requests differing only in query array order should share a fingerprint")
	}
}
