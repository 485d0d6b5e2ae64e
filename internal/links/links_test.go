package links

import (
	"strings"
	"testing"
)

func TestNewRejectsBadBase(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com", "http://", "://bad"} {
		if _, err := New(base); err == nil {
			t.Errorf("New(%q) error = nil, want error", base)
		}
	}
}

func TestLinks(t *testing.T) {
	l, err := New("http://stager.local:8080/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "callback pinned to https",
			got:  l.Callback(),
			want: "https://stager.local:8080/camera/portal",
		},
		{
			name: "upload",
			got:  l.Upload(),
			want: "http://stager.local:8080/ajax/upload",
		},
		{
			name: "descriptor",
			got:  l.Descriptor("T1"),
			want: "http://stager.local:8080/camera/xpd/T1",
		},
		{
			name: "blob download",
			got:  l.BlobDownload("b1", "T1"),
			want: "http://stager.local:8080/download/spk/blob/b1?task=T1",
		},
		{
			name: "app download escapes id",
			got:  l.AppDownload("com.example/app", "T2"),
			want: "http://stager.local:8080/download/spk/app/com.example%2Fapp?task=T2",
		},
		{
			name: "download without task",
			got:  l.BlobDownload("b1", ""),
			want: "http://stager.local:8080/download/spk/blob/b1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBasePathPrefix(t *testing.T) {
	l, err := New("https://example.com/stager")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := l.Descriptor("T"); !strings.HasPrefix(got, "https://example.com/stager/camera/xpd/") {
		t.Errorf("Descriptor() = %q, want base path kept", got)
	}
}
