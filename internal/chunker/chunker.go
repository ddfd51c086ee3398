package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/whispernote/pkg/types"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk
	DefaultChunkSize = 512

	// DefaultSplitPattern splits text into paragraphs at blank lines
	DefaultSplitPattern = `\n\n`

	// provenanceDateLayout renders dates as "Monday, January 02, 2006"
	provenanceDateLayout = "Monday, January 02, 2006"
)

// Config controls how text is split into chunks
type Config struct {
	ChunkSize    int    // Characters per chunk (default: 512)
	Overlap      int    // Characters shared with the previous chunk (default: 0)
	SplitPattern string // Regex applied before windowing; empty uses DefaultSplitPattern
	NoSplit      bool   // Disable the split pattern and window over the whole text
}

// FileInfo is the provenance prefixed to each chunk when supplied
type FileInfo struct {
	Name       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Chunker splits text into overlapping character windows
type Chunker struct {
	chunkSize int
	overlap   int
	split     *regexp.Regexp
}

// New creates a Chunker with paragraph splitting and 512 character chunks
func New() *Chunker {
	return &Chunker{
		chunkSize: DefaultChunkSize,
		split:     regexp.MustCompile(DefaultSplitPattern),
	}
}

// NewWithConfig creates a Chunker from explicit configuration
func NewWithConfig(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", cfg.Overlap)
	}

	c := &Chunker{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
	}
	if !cfg.NoSplit {
		pattern := cfg.SplitPattern
		if pattern == "" {
			pattern = DefaultSplitPattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid split pattern: %w", err)
		}
		c.split = re
	}
	return c, nil
}

// ChunkSize returns the configured window size
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured window overlap
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Chunk splits text into chunks. When info is non-nil each chunk is prefixed
// with a provenance line naming the file and its dates.
func (c *Chunker) Chunk(text string, info *FileInfo) []string {
	var parts []string
	if c.split != nil {
		parts = c.split.Split(text, -1)
	} else {
		parts = []string{text}
	}

	chunks := make([]string, 0)
	for _, part := range parts {
		for _, chunk := range c.window(part) {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			chunks = append(chunks, chunk)
		}
	}

	if info != nil {
		header := provenance(info)
		for i := range chunks {
			chunks[i] = header + chunks[i]
		}
	}
	return chunks
}

// ChunkFile reads path and chunks its contents
func (c *Chunker) ChunkFile(path string, info *FileInfo) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.ChunkBytes(path, data, info)
}

// ChunkBytes chunks file contents already read from path.
// Returns a *types.DecodeError if data is not valid UTF-8.
func (c *Chunker) ChunkBytes(path string, data []byte, info *FileInfo) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, &types.DecodeError{Path: path, Offset: firstInvalid(data)}
	}
	return c.Chunk(string(data), info), nil
}

// window applies the sliding window to a single part
func (c *Chunker) window(text string) []string {
	runes := []rune(text)
	step := c.chunkSize - c.overlap
	if c.overlap >= c.chunkSize {
		step = c.chunkSize
	}

	windows := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.chunkSize, len(runes))
		windows = append(windows, string(runes[start:end]))
	}
	return windows
}

// provenance builds the header line for a file
func provenance(info *FileInfo) string {
	return fmt.Sprintf("File: %s | Created: %s | Modified: %s\n",
		filepath.Base(info.Name),
		formatDate(info.CreatedAt),
		formatDate(info.ModifiedAt))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(provenanceDateLayout)
}

// firstInvalid returns the byte offset of the first invalid UTF-8 sequence
func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}
