package data

import (
	"path/filepath"
	"strings"
)

type ContentType string

const (
	ContentTypeTextPlain         ContentType = "text/plain"
	ContentTypeTextHTML          ContentType = "text/html"
	ContentTypeTextCSS           ContentType = "text/css"
	ContentTypeTextJavaScript    ContentType = "text/javascript"
	ContentTypeTextCSV           ContentType = "text/csv"
	ContentTypeImagePNG          ContentType = "image/png"
	ContentTypeImageJPEG         ContentType = "image/jpeg"
	ContentTypeApplicationPDF    ContentType = "application/pdf"
	ContentTypeApplicationZip    ContentType = "application/zip"
	ContentTypeApplicationJava   ContentType = "application/java-archive"
	ContentTypeApplicationGZip   ContentType = "application/gzip"
	ContentTypeApplicationXTar   ContentType = "application/x-tar"
	ContentTypeApplicationJson   ContentType = "application/json"
	ContentTypeApplicationXML    ContentType = "application/xml"
	ContentTypeApplicationYAML   ContentType = "application/yaml"
	ContentTypeApplicationStream ContentType = "application/octet-stream"
	ContentTypeVFSLink           ContentType = "application/x-vfs-link"
	ContentTypeDirectory         ContentType = "inode/directory"
)

// LinkSuffix marks files that declare link handlers.
const LinkSuffix = ".vfslink.yaml"

// ExtensionToMIME maps file extensions to MIME types
var ExtensionToMIME = map[string]ContentType{
	".txt":  ContentTypeTextPlain,
	".html": ContentTypeTextHTML,
	".css":  ContentTypeTextCSS,
	".js":   ContentTypeTextJavaScript,
	".csv":  ContentTypeTextCSV,
	".png":  ContentTypeImagePNG,
	".jpg":  ContentTypeImageJPEG,
	".jpeg": ContentTypeImageJPEG,
	".pdf":  ContentTypeApplicationPDF,
	".zip":  ContentTypeApplicationZip,
	".jar":  ContentTypeApplicationJava,
	".war":  ContentTypeApplicationJava,
	".ear":  ContentTypeApplicationJava,
	".sar":  ContentTypeApplicationJava,
	".rar":  ContentTypeApplicationJava,
	".gz":   ContentTypeApplicationGZip,
	".tar":  ContentTypeApplicationXTar,
	".json": ContentTypeApplicationJson,
	".xml":  ContentTypeApplicationXML,
	".yaml": ContentTypeApplicationYAML,
	".yml":  ContentTypeApplicationYAML,
}

// GetMIMEType returns the MIME type for a file name
func GetMIMEType(name string) ContentType {
	if IsLink(name) {
		return ContentTypeVFSLink
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mimeType, exists := ExtensionToMIME[ext]; exists {
		return mimeType
	}

	// Default to octet-stream for unknown types
	return ContentTypeApplicationStream
}

// IsArchive reports whether name looks like a zip-format archive that can be mounted.
func IsArchive(name string) bool {
	switch GetMIMEType(name) {
	case ContentTypeApplicationZip, ContentTypeApplicationJava:
		return true
	}
	return false
}

// IsLink reports whether name is a link declaration file.
func IsLink(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), LinkSuffix)
}
