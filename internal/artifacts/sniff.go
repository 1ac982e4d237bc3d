package artifacts

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// mimeTypes maps a resolved extension to the Content-Type served for it.
var mimeTypes = map[string]string{
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pdf":  "application/pdf",
	"csv":  "text/csv",
	"txt":  "text/plain",
	"json": "application/json",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"gif":  "image/gif",
	"zip":  "application/zip",
	"bin":  "application/octet-stream",
}

// MIMEForExtension returns the Content-Type for an extension, defaulting
// to application/octet-stream.
func MIMEForExtension(ext string) string {
	if mime, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return mimeTypes["bin"]
}

// sniffSize bounds how much of the payload DetectExtension inspects.
const sniffSize = 4096

// DetectExtension infers a file extension from the payload's leading
// bytes. Office formats share the zip signature, so the zip entry names
// are probed to tell them apart. Returns "bin" when nothing matches.
func DetectExtension(data []byte) string {
	if len(data) > sniffSize {
		data = data[:sniffSize]
	}

	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return sniffOfficeZip(data)
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "pdf"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "png"
	case bytes.HasPrefix(data, []byte("\xff\xd8")):
		return "jpg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "gif"
	}

	if looksLikeCSV(data) {
		return "csv"
	}
	return "bin"
}

// sniffOfficeZip distinguishes the OOXML formats by the package directory
// names visible near the start of the archive.
func sniffOfficeZip(data []byte) string {
	switch {
	case bytes.Contains(data, []byte("ppt/")):
		return "pptx"
	case bytes.Contains(data, []byte("word/")):
		return "docx"
	case bytes.Contains(data, []byte("xl/")):
		return "xlsx"
	}
	return "zip"
}

// looksLikeCSV reports whether the payload is text containing both commas
// and line breaks. Any valid UTF-8 rune counts as text; control bytes
// other than tab and line breaks, and invalid encodings, do not.
func looksLikeCSV(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	hasComma, hasNewline := false, false
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// A multi-byte rune cut off by the sniff window is not
			// evidence of binary content.
			if len(data)-i < utf8.UTFMax && utf8.RuneStart(data[i]) {
				break
			}
			return false
		}
		switch {
		case r == ',':
			hasComma = true
		case r == '\n':
			hasNewline = true
		case r == '\r' || r == '\t':
		case r < 0x20:
			return false
		}
		i += size
	}
	return hasComma && hasNewline
}
