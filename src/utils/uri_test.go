package utils

import (
	"runtime"
	"testing"
)

func TestFilePathToURI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-style paths")
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"absolute path", "/home/user/project/main.go", "file:///home/user/project/main.go"},
		{"already a URI", "file:///tmp/a.go", "file:///tmp/a.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilePathToURI(tt.path); got != tt.want {
				t.Errorf("FilePathToURI(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestURIToFilePath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-style paths")
	}

	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"file URI", "file:///home/user/project/main.go", "/home/user/project/main.go"},
		{"escaped space", "file:///tmp/my%20dir/a.go", "/tmp/my dir/a.go"},
		{"plain path passes through", "/tmp/a.go", "/tmp/a.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := URIToFilePath(tt.uri); got != tt.want {
				t.Errorf("URIToFilePath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-style paths")
	}
	path := "/home/user/src/lib.rs"
	if got := URIToFilePath(FilePathToURI(path)); got != path {
		t.Errorf("round trip = %q, want %q", got, path)
	}
}
