package constants

import "strings"

// FileFormat is the coarse media class driving the reader strategy.
type FileFormat string

const (
	PDF   FileFormat = "PDF"
	IMAGE FileFormat = "IMAGE"
	DOCX  FileFormat = "DOCX"
)

var imageExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "bmp": {}, "tif": {}, "tiff": {}, "webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a (possibly dotted) extension to its FileFormat.
// Returns "" for unsupported extensions.
func MapExtToFormat(ext string) FileFormat {
	e := NormalizeExt(ext)
	switch {
	case e == "pdf":
		return PDF
	case e == "docx":
		return DOCX
	default:
		if _, ok := imageExtensions[e]; ok {
			return IMAGE
		}
		return ""
	}
}
