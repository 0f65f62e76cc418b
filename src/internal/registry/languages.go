package registry

import (
	"path/filepath"
	"strings"
)

// Language describes one supported language: how files are recognized and
// which server binary speaks LSP for it by default.
type Language struct {
	Name          string
	Extensions    []string
	ServerCommand string
	ServerArgs    []string
	InitOptions   map[string]interface{}
}

var languages = []Language{
	{
		Name:          "go",
		Extensions:    []string{".go"},
		ServerCommand: "gopls",
		ServerArgs:    []string{"serve"},
		InitOptions: map[string]interface{}{
			"usePlaceholders":    false,
			"completeUnimported": true,
		},
	},
	{
		Name:          "python",
		Extensions:    []string{".py", ".pyi"},
		ServerCommand: "pylsp",
		ServerArgs:    []string{},
	},
	{
		Name:          "javascript",
		Extensions:    []string{".js", ".jsx", ".mjs"},
		ServerCommand: "typescript-language-server",
		ServerArgs:    []string{"--stdio"},
	},
	{
		Name:          "typescript",
		Extensions:    []string{".ts", ".tsx"},
		ServerCommand: "typescript-language-server",
		ServerArgs:    []string{"--stdio"},
	},
	{
		Name:          "java",
		Extensions:    []string{".java"},
		ServerCommand: "jdtls",
		ServerArgs:    []string{},
	},
	{
		Name:          "rust",
		Extensions:    []string{".rs"},
		ServerCommand: "rust-analyzer",
		ServerArgs:    []string{},
	},
}

// GetLanguageByName returns the language entry for a language identifier.
func GetLanguageByName(name string) (Language, bool) {
	for _, lang := range languages {
		if lang.Name == name {
			return lang, true
		}
	}
	return Language{}, false
}

// DetectLanguage returns the language identifier for a file path or file
// URI, or "" when the extension is not recognized.
func DetectLanguage(path string) string {
	path = strings.TrimPrefix(path, "file://")
	ext := strings.ToLower(filepath.Ext(path))
	for _, lang := range languages {
		for _, e := range lang.Extensions {
			if e == ext {
				return lang.Name
			}
		}
	}
	return ""
}

// AllLanguages returns the names of every supported language.
func AllLanguages() []string {
	names := make([]string, 0, len(languages))
	for _, lang := range languages {
		names = append(names, lang.Name)
	}
	return names
}
