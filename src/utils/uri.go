package utils

import (
	"strings"

	"go.lsp.dev/uri"
)

// FilePathToURI converts a file system path to a file:// URI
func FilePathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return string(uri.File(path))
}

// URIToFilePath converts a file:// URI to a file system path
func URIToFilePath(rawURI string) string {
	if !strings.HasPrefix(rawURI, "file://") {
		return rawURI
	}
	return uri.URI(rawURI).Filename()
}
