package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  Agente Silva ", "Agente Silva"},
		{"<b>AG</b>", "AG"},
		{"<script>alert(1)</script>Ana", "Ana"},
		{"Bob & Alice", "Bob & Alice"},
		{`<img src=x onerror="alert(1)">`, ""},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTML_StripsScripts(t *testing.T) {
	got := HTML(`<p>ok</p><script>alert(1)</script><a href="javascript:alert(1)">x</a>`)
	if strings.Contains(got, "script") || strings.Contains(got, "javascript:") {
		t.Errorf("dangerous markup survived: %q", got)
	}
	if !strings.Contains(got, "<p>ok</p>") {
		t.Errorf("safe markup lost: %q", got)
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"https://images.unsplash.com/photo-1?w=1600", "https://images.unsplash.com/photo-1?w=1600"},
		{" http://example.com/map.png ", "http://example.com/map.png"},
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"javascript:alert(1)", ""},
		{"ftp://example.com/x", ""},
		{"/relative/path.png", ""},
		{"data:text/html,<script>", ""},
	}
	for _, tt := range tests {
		if got := URL(tt.in); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
