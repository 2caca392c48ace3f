package httputil

import (
	"fmt"
	"net/http"
	"strings"
)

// maxFilenameLen bounds generated download names.
const maxFilenameLen = 128

// SanitizeFilename makes a safe filename stem from an arbitrary string such
// as a run label. Anything other than ASCII letters, digits, dot, underscore
// or dash becomes a single underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// WriteAttachment sends data as a download named after stem.
func WriteAttachment(w http.ResponseWriter, contentType, stem, ext string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s%s", SanitizeFilename(stem), ext))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
