package ns

import (
	"path/filepath"
	"strings"
)

// Category groups stored files by kind. The value doubles as the top-level
// directory name under the storage root and the URL path prefix.
type Category string

const (
	CategoryNote Category = "notes"
	CategoryCSS  Category = "css"
	CategoryFile Category = "files"
)

// Categories lists every category in serving order.
var Categories = []Category{CategoryNote, CategoryCSS, CategoryFile}

// NameLength returns the number of base-36 characters in derived names.
func (c Category) NameLength() int {
	if c == CategoryNote {
		return 8
	}
	return 20
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryNote, CategoryCSS, CategoryFile:
		return true
	}
	return false
}

type extensionInfo struct {
	category    Category
	contentType string
}

var extensions = map[string]extensionInfo{
	"html": {CategoryNote, "text/html; charset=utf-8"},
	"css":  {CategoryCSS, "text/css; charset=utf-8"},

	"jpg":  {CategoryFile, "image/jpeg"},
	"jpeg": {CategoryFile, "image/jpeg"},
	"png":  {CategoryFile, "image/png"},
	"gif":  {CategoryFile, "image/gif"},
	"webp": {CategoryFile, "image/webp"},
	"svg":  {CategoryFile, "image/svg+xml"},
	"bmp":  {CategoryFile, "image/bmp"},
	"ico":  {CategoryFile, "image/x-icon"},
	"avif": {CategoryFile, "image/avif"},

	"ttf":   {CategoryFile, "font/ttf"},
	"otf":   {CategoryFile, "font/otf"},
	"woff":  {CategoryFile, "font/woff"},
	"woff2": {CategoryFile, "font/woff2"},

	"mp4": {CategoryFile, "video/mp4"},
}

// NormalizeExtension turns "png", ".PNG" or "photo.png" into "png".
func NormalizeExtension(fileType string) string {
	s := strings.TrimSpace(fileType)
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}
	return strings.ToLower(strings.TrimPrefix(s, "."))
}

// ExtensionCategory returns the category for a whitelisted extension.
func ExtensionCategory(fileType string) (Category, bool) {
	info, ok := extensions[NormalizeExtension(fileType)]
	return info.category, ok
}

// ContentType returns the MIME type served for a whitelisted extension,
// or application/octet-stream.
func ContentType(fileType string) string {
	if info, ok := extensions[NormalizeExtension(fileType)]; ok {
		return info.contentType
	}
	return "application/octet-stream"
}

// FilenameCategory returns the category of a stored filename such as
// "abcd1234.html".
func FilenameCategory(filename string) (Category, bool) {
	if filepath.Ext(filename) == "" {
		return "", false
	}
	return ExtensionCategory(filename)
}
