package httpapi

import "testing"

func TestNormalizeMountPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"snipforge", "/snipforge"},
		{"/snipforge", "/snipforge"},
		{"/snipforge/", "/snipforge"},
		{" /lab/snippets ", "/lab/snippets"},
	}
	for _, tc := range cases {
		if got := normalizeMountPath(tc.in); got != tc.want {
			t.Fatalf("normalizeMountPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShareLinkBase(t *testing.T) {
	cases := []struct {
		baseURL   string
		mountPath string
		want      string
	}{
		{"", "", ""},
		{"", "/snipforge", "/snipforge/"},
		{"", "snipforge", "/snipforge/"},
		{"https://example.com", "", "https://example.com/"},
		{"https://example.com/", "snipforge", "https://example.com/snipforge/"},
		{"https://example.com/base", "/x", "https://example.com/base/x/"},
	}
	for _, tc := range cases {
		if got := shareLinkBase(tc.baseURL, tc.mountPath); got != tc.want {
			t.Fatalf("shareLinkBase(%q, %q) = %q, want %q", tc.baseURL, tc.mountPath, got, tc.want)
		}
	}
}

func TestShareURLUsesLinkBase(t *testing.T) {
	srv := NewServer(Config{BaseURL: "https://example.com", BasePath: "/lab"}, nil, nil, nil, nil)
	if got := srv.shareURL("deadbeef"); got != "https://example.com/lab/s/deadbeef" {
		t.Fatalf("unexpected share url: %q", got)
	}
	bare := NewServer(Config{}, nil, nil, nil, nil)
	if got := bare.shareURL("deadbeef"); got != "/s/deadbeef" {
		t.Fatalf("unexpected share url: %q", got)
	}
}
