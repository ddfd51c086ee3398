package chunker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/whispernote/pkg/types"
)

func newChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := NewWithConfig(cfg)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkSize, c.ChunkSize())
	assert.Equal(t, 0, c.Overlap())
}

func TestNewWithConfig_Invalid(t *testing.T) {
	_, err := NewWithConfig(Config{ChunkSize: 0})
	assert.Error(t, err)

	_, err = NewWithConfig(Config{ChunkSize: 10, Overlap: -1})
	assert.Error(t, err)

	_, err = NewWithConfig(Config{ChunkSize: 10, SplitPattern: "("})
	assert.Error(t, err)
}

func TestChunk_FixedSize(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 5, NoSplit: true})
	assert.Equal(t, []string{"abcde", "fghij"}, c.Chunk("abcdefghij", nil))
}

func TestChunk_Overlap(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 5, Overlap: 2, NoSplit: true})
	assert.Equal(t, []string{"abcde", "defgh", "ghij", "j"}, c.Chunk("abcdefghij", nil))
}

func TestChunk_OverlapNotSmallerThanSize(t *testing.T) {
	for _, overlap := range []int{5, 10} {
		c := newChunker(t, Config{ChunkSize: 5, Overlap: overlap, NoSplit: true})
		assert.Equal(t, []string{"abcde", "fghij"}, c.Chunk("abcdefghij", nil))
	}
}

func TestChunk_Paragraphs(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 100})
	text := "First paragraph.\n\nSecond paragraph.\n\nThird."
	assert.Equal(t, []string{"First paragraph.", "Second paragraph.", "Third."}, c.Chunk(text, nil))
}

func TestChunk_LongParagraphIsWindowed(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 5})
	chunks := c.Chunk("Short.\n\nThisIsALongPara.", nil)
	assert.Equal(t, []string{"Short", ".", "ThisI", "sALon", "gPara", "."}, chunks)
}

func TestChunk_EmptyAndWhitespace(t *testing.T) {
	c := New()
	assert.Empty(t, c.Chunk("", nil))
	assert.Empty(t, c.Chunk("   \n\t  ", nil))
	assert.Empty(t, c.Chunk("\n\n\n\n", nil))
}

func TestChunk_CountsCharactersNotBytes(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 2, NoSplit: true})
	assert.Equal(t, []string{"hé", "ll", "ö"}, c.Chunk("héllö", nil))
}

func TestChunk_CoverageProperty(t *testing.T) {
	text := strings.Repeat("0123456789", 13) + "xyz"
	for size := 1; size <= 12; size++ {
		for overlap := 0; overlap < size; overlap++ {
			c := newChunker(t, Config{ChunkSize: size, Overlap: overlap, NoSplit: true})
			chunks := c.Chunk(text, nil)
			require.NotEmpty(t, chunks)

			rebuilt := chunks[0]
			for i := 1; i < len(chunks); i++ {
				prev := []rune(chunks[i-1])
				cur := []rune(chunks[i])
				assert.LessOrEqual(t, len(cur), size)
				if len(prev) == size && overlap > 0 && len(cur) >= overlap {
					assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]))
				}
				if overlap < len(cur) {
					rebuilt += string(cur[overlap:])
				}
			}
			assert.Equal(t, text, rebuilt, "size=%d overlap=%d", size, overlap)
		}
	}
}

func TestChunk_Provenance(t *testing.T) {
	c := newChunker(t, Config{ChunkSize: 100})
	info := &FileInfo{
		Name:       "/notes/2025/standup.md",
		CreatedAt:  time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC),
		ModifiedAt: time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC),
	}

	chunks := c.Chunk("Shipped the importer.\n\nFixed the flaky test.", info)
	require.Len(t, chunks, 2)
	header := "File: standup.md | Created: Friday, May 02, 2025 | Modified: Saturday, May 03, 2025\n"
	assert.Equal(t, header+"Shipped the importer.", chunks[0])
	assert.Equal(t, header+"Fixed the flaky test.", chunks[1])
}

func TestChunkFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld"), 0644))

	chunks, err := New().ChunkFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello\nworld"}, chunks)
}

func TestChunkFile_DecodeError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte{'o', 'k', 0xff, 0xfe}, 0644))

	_, err := New().ChunkFile(path, nil)
	require.Error(t, err)

	var decodeErr *types.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, path, decodeErr.Path)
	assert.Equal(t, 2, decodeErr.Offset)
}

func TestChunkFile_Missing(t *testing.T) {
	_, err := New().ChunkFile(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
	assert.False(t, types.IsDecode(err))
}
