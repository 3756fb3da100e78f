package ingest

import (
	"path/filepath"
	"strings"
)

// Class is the routing decision for one uploaded file. Only images go
// through OCR; everything else is stored as-is with empty text.
type Class string

const (
	ClassImage Class = "image"
	ClassPDF   Class = "pdf"
	ClassWord  Class = "word"
	ClassOther Class = "other"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

var wordExtensions = map[string]bool{
	".doc":  true,
	".docx": true,
	".rtf":  true,
	".odt":  true,
}

// Classify routes a file by extension first, media type second. An unknown
// extension with an unknown media type falls through to ClassOther.
func Classify(filename, mediaType string) Class {
	ext := strings.ToLower(filepath.Ext(filename))
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	switch {
	case imageExtensions[ext]:
		return ClassImage
	case ext == ".pdf":
		return ClassPDF
	case wordExtensions[ext]:
		return ClassWord
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return ClassImage
	case mediaType == "application/pdf":
		return ClassPDF
	case mediaType == "application/msword",
		mediaType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mediaType == "application/rtf",
		mediaType == "application/vnd.oasis.opendocument.text":
		return ClassWord
	}
	return ClassOther
}
