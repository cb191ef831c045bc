package report

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFRenderer_MissingFont(t *testing.T) {
	_, err := NewPDFRenderer([]string{"/nonexistent/font.ttf"}).RenderPDF(sampleReport())
	assert.ErrorIs(t, err, ErrNoFont)
}

func TestPDFRenderer_Render(t *testing.T) {
	var font string
	for _, p := range DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			font = p
			break
		}
	}
	if font == "" {
		t.Skip("DejaVuSans not installed")
	}

	rep := sampleReport()
	rep.Complete = false
	data, err := NewPDFRenderer([]string{font}).RenderPDF(rep)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestFactLines(t *testing.T) {
	lines := factLines(sampleReport())
	require.NotEmpty(t, lines)
	assert.Equal(t, "- [symptoms] headache", lines[0])
	assert.Equal(t, "- [severity] headache: severe", lines[1])
	assert.Equal(t, "- [location] head", lines[2])
}
