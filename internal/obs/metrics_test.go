package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/v1/link":                "/v1/link",
		"/v1/link/123456789":      "/v1/link/:member",
		"/v1/link/123456789?g=1":  "/v1/link/:member",
		"/v1/events":              "/v1/events",
		"/healthz":                "/healthz",
		"/v1/info?verbose=1":      "/v1/info",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
