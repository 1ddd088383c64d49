package walrus

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultContentType is used for uploads whose extension is not in the table
const DefaultContentType = "application/octet-stream"

var extensionToMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".json": "application/json",
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
}

var mimeToExtension = map[string]string{
	"image/jpeg":             ".jpg",
	"image/png":              ".png",
	"image/gif":              ".gif",
	"image/webp":             ".webp",
	"application/pdf":        ".pdf",
	"text/plain":             ".txt",
	"application/json":       ".json",
	"text/html":              ".html",
	"text/css":               ".css",
	"application/javascript": ".js",
}

// GetMimeType maps the extension of path to a MIME type. The lookup is case
// insensitive; unknown extensions map to DefaultContentType.
func GetMimeType(path string) string {
	if m, ok := extensionToMime[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return DefaultContentType
}

// ExtensionFromMime returns the file extension for a content type, ignoring
// parameters such as charset. Unknown types yield "".
func ExtensionFromMime(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	return mimeToExtension[mediaType]
}
