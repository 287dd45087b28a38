package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BufferIsPlain(t *testing.T) {
	// Given: a non-terminal writer
	buf := &bytes.Buffer{}

	// When: creating an output writer
	w := New(buf)

	// Then: color is disabled and output has no escape codes
	assert.False(t, w.Interactive())
	w.Success("Indexed 3 files")
	assert.Equal(t, "✓ Indexed 3 files\n", buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_StatusLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warningf("%d documents failed", 2)
	w.Errorf("cannot open %s", "x.pdf")
	w.Status("", "indented")

	assert.Equal(t, "! 2 documents failed\n✗ cannot open x.pdf\n   indented\n", buf.String())
}

func TestWriter_KeyValuesAlign(t *testing.T) {
	// Given: labels of different widths
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing them
	w.KeyValues("Entries", "12", "Dimension", "256")

	// Then: values start in the same column
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  Entries:   12", lines[0])
	assert.Equal(t, "  Dimension: 256", lines[1])
}

func TestWriter_QuoteIndentsEveryLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Quote("first\nsecond\n")

	assert.Equal(t, "    first\n    second\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]int{"entry_count": 2}))

	assert.Equal(t, "{\n  \"entry_count\": 2\n}\n", buf.String())
}

func TestWriter_Code_PrintsCodeBlock(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Code(`{"key": "value"}`)

	assert.Contains(t, buf.String(), `  {"key": "value"}`)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestProgress_PlainLinesAreConcurrencySafe(t *testing.T) {
	// Given: progress on a non-terminal writer
	buf := &bytes.Buffer{}
	p := New(buf).NewProgress(4, "Ingesting")

	// When: steps finish concurrently
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Step("file")
		}()
	}
	wg.Wait()
	p.Finish()

	// Then: one numbered line per step
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[1/4] file", lines[0])
	assert.Equal(t, "[4/4] file", lines[3])
}
