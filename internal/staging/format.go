package staging

import (
	"math"
	"strconv"
	"strings"

	"github.com/kbdesk/backend/internal/models"
)

// AcceptedExtensions lists the lower-cased suffixes the backend can index.
var AcceptedExtensions = []string{".txt", ".pdf", ".doc", ".docx", ".ppt", ".pptx", ".md", ".markdown"}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// Extension returns the lower-cased final "."-delimited suffix of name,
// dot included, or "" when name has no dot.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// IsSupported reports whether name carries one of the accepted extensions.
func IsSupported(name string) bool {
	ext := Extension(name)
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count with 1024-based units, two decimals at most.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[unit]
}

// IconFor picks the icon category for a file name.
func IconFor(name string) models.IconTag {
	switch Extension(name) {
	case ".pdf":
		return models.IconPDF
	case ".doc", ".docx":
		return models.IconWord
	case ".ppt", ".pptx":
		return models.IconPowerPoint
	case ".txt":
		return models.IconText
	case ".md", ".markdown":
		return models.IconMarkdown
	default:
		return models.IconGeneric
	}
}
