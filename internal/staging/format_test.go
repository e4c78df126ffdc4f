package staging

import (
	"testing"

	"github.com/kbdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1100, "1.07 KB"},
		{1048576, "1 MB"},
		{5 * 1024 * 1024 * 1024, "5 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3072 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSize(tt.bytes))
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", Extension("report.PDF"))
	assert.Equal(t, ".gz", Extension("archive.tar.gz"))
	assert.Equal(t, ".md", Extension(".md"))
	assert.Equal(t, "", Extension("README"))
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"notes.txt", true},
		{"paper.pdf", true},
		{"letter.doc", true},
		{"letter.DOCX", true},
		{"deck.ppt", true},
		{"deck.pptx", true},
		{"readme.md", true},
		{"guide.Markdown", true},
		{"sheet.xlsx", false},
		{"image.png", false},
		{"txt", false},
		{"notes.txt.bak", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupported(tt.name))
		})
	}
}

func TestIconFor(t *testing.T) {
	assert.Equal(t, models.IconPDF, IconFor("a.pdf"))
	assert.Equal(t, models.IconWord, IconFor("a.doc"))
	assert.Equal(t, models.IconWord, IconFor("a.DOCX"))
	assert.Equal(t, models.IconPowerPoint, IconFor("a.ppt"))
	assert.Equal(t, models.IconPowerPoint, IconFor("a.pptx"))
	assert.Equal(t, models.IconText, IconFor("a.txt"))
	assert.Equal(t, models.IconMarkdown, IconFor("a.md"))
	assert.Equal(t, models.IconMarkdown, IconFor("a.markdown"))
	assert.Equal(t, models.IconGeneric, IconFor("a.csv"))
}
