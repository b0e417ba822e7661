// Package chunker splits legal document text into semantically typed,
// size-bounded chunks.
//
// Segmentation prefers natural boundaries (blank lines, uppercase headings,
// numbered markers, sentence ends) and falls back to a hard size cap. Each
// chunk is classified against category vocabularies and carries detected
// statute/precedent references, domain concepts and a 1-10 priority.
package chunker

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Config holds configuration for the Chunker.
type Config struct {
	// MaxChunkSize is the soft upper bound on chunk content length in bytes.
	// Default: 800
	MaxChunkSize int

	// OverlapSize is the number of trailing bytes carried into the next
	// chunk at a cut point. Default: 100
	OverlapSize int

	// MinChunkSize is the minimum content length; shorter fragments are
	// dropped. Default: 20
	MinChunkSize int

	// MergeRelated merges consecutive chunks of identical category and
	// priority while the combined size stays under 1.5x MaxChunkSize.
	MergeRelated bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 800
	}
	if c.OverlapSize == 0 {
		c.OverlapSize = 100
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 20
	}
}

// Span records the byte offsets of a chunk in its source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is an immutable unit of retrievable text.
type Chunk struct {
	// Content is the chunk text. Never empty.
	Content string `json:"content"`

	// Category is the semantic role of the chunk.
	Category Category `json:"category"`

	// Title is an optional heading inferred from the start of the span.
	Title string `json:"title,omitempty"`

	// References are formal citations (statute articles, precedent
	// summaries) detected in the content.
	References []string `json:"references,omitempty"`

	// Concepts are domain keywords detected in the content.
	Concepts []string `json:"concepts,omitempty"`

	// Priority ranks the chunk 1-10, 10 being most important.
	Priority int `json:"priority"`

	// Span locates the chunk in the source text, for traceability only.
	Span Span `json:"span"`

	// ContextBefore and ContextAfter are short excerpts of adjacent text,
	// carried for human-readable explanation only.
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// contextWindow is the length of the adjacent-text excerpts.
const contextWindow = 200

// Chunker segments raw text into classified chunks.
type Chunker struct {
	config Config
	logger *zap.Logger
}

// New creates a Chunker with the given configuration.
func New(config Config, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Chunker{config: config, logger: logger}
}

// Segment splits text into an ordered sequence of chunks. The label is used
// for logging only. Empty or whitespace-only input yields nil; Segment never
// fails on malformed input.
//
// Paragraph blocks are the unit of segmentation; a block larger than the
// size cap is cut at sentence or list boundaries with overlap between cuts.
func (c *Chunker) Segment(text, label string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	for _, blk := range blocks(text) {
		if blk.End-blk.Start <= c.config.MaxChunkSize {
			content := strings.TrimSpace(text[blk.Start:blk.End])
			if len(content) >= c.config.MinChunkSize {
				chunks = append(chunks, c.buildChunk(text, content, blk.Start, blk.End))
			}
			continue
		}
		chunks = append(chunks, c.slide(text, blk.Start, blk.End)...)
	}

	if c.config.MergeRelated {
		chunks = c.mergeRelated(chunks)
	}

	c.logger.Debug("segmented text",
		zap.String("label", label),
		zap.Int("input_bytes", len(text)),
		zap.Int("chunks", len(chunks)),
	)

	return chunks
}

// slide cuts an oversized block with a moving window, preferring the last
// natural break inside each window and carrying overlap between cuts.
func (c *Chunker) slide(text string, lo, hi int) []Chunk {
	breaks := naturalBreaks(text[lo:hi], lo)

	var chunks []Chunk
	pos := lo
	for pos < hi {
		end := pos + c.config.MaxChunkSize
		if end > hi {
			end = hi
		}
		if end < hi {
			if b, ok := lastBreakIn(breaks, pos, end); ok {
				end = b
			}
		}

		content := strings.TrimSpace(text[pos:end])
		if len(content) >= c.config.MinChunkSize {
			chunks = append(chunks, c.buildChunk(text, content, pos, end))
		}

		if end >= hi {
			break
		}
		next := end - c.config.OverlapSize
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}
	return chunks
}

// blocks returns the paragraph spans of text, split on blank lines.
func blocks(text string) []Span {
	var spans []Span
	start := 0
	for _, sep := range paragraphRe.FindAllStringIndex(text, -1) {
		if sep[0] > start {
			spans = append(spans, Span{Start: start, End: sep[0]})
		}
		start = sep[1]
	}
	if start < len(text) {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

// buildChunk classifies a span and fills in its metadata.
func (c *Chunker) buildChunk(text, content string, start, end int) Chunk {
	before := start - contextWindow
	if before < 0 {
		before = 0
	}
	after := end + contextWindow
	if after > len(text) {
		after = len(text)
	}

	category := Classify(content)
	refs := ExtractReferences(content)
	concepts := ExtractConcepts(content)

	return Chunk{
		Content:       content,
		Category:      category,
		Title:         extractTitle(content),
		References:    refs,
		Concepts:      concepts,
		Priority:      computePriority(category, concepts, refs),
		Span:          Span{Start: start, End: end},
		ContextBefore: strings.TrimSpace(text[before:start]),
		ContextAfter:  strings.TrimSpace(text[end:after]),
	}
}

// mergeRelated collapses runs of same-category, same-priority chunks while
// the combined content stays under 1.5x the size budget.
func (c *Chunker) mergeRelated(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	limit := c.config.MaxChunkSize + c.config.MaxChunkSize/2

	merged := make([]Chunk, 0, len(chunks))
	cur := chunks[0]
	for _, next := range chunks[1:] {
		join := cur.Category == next.Category &&
			cur.Priority == next.Priority &&
			len(cur.Content)+len(next.Content) < limit
		if !join {
			merged = append(merged, cur)
			cur = next
			continue
		}

		title := cur.Title
		if title == "" {
			title = next.Title
		}
		cur = Chunk{
			Content:       cur.Content + "\n\n" + next.Content,
			Category:      cur.Category,
			Title:         title,
			References:    mergeUnique(cur.References, next.References),
			Concepts:      mergeUnique(cur.Concepts, next.Concepts),
			Priority:      cur.Priority,
			Span:          Span{Start: cur.Span.Start, End: next.Span.End},
			ContextBefore: cur.ContextBefore,
			ContextAfter:  next.ContextAfter,
		}
	}
	merged = append(merged, cur)

	if len(merged) != len(chunks) {
		c.logger.Debug("merged related chunks",
			zap.Int("before", len(chunks)),
			zap.Int("after", len(merged)),
		)
	}
	return merged
}

// extractTitle looks at the first three lines for a heading: either an
// all-caps line or a numbered section start.
func extractTitle(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 3 {
		lines = lines[:3]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > 5 && len(line) < 100 && line == strings.ToUpper(line) && strings.ContainsFunc(line, isUpperLetter) {
			return line
		}
		if len(line) < 100 && numberedTitleRe.MatchString(line) {
			return line
		}
	}
	return ""
}

func isUpperLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'À' && r <= 'Þ' && r != '×')
}

// naturalBreaks returns sorted candidate cut offsets inside a block:
// list markers and sentence ends, shifted by the block's base offset.
func naturalBreaks(text string, base int) []int {
	seen := make(map[int]struct{})
	for _, re := range breakPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			seen[base+loc[0]+1] = struct{}{}
		}
	}
	breaks := make([]int, 0, len(seen))
	for b := range seen {
		breaks = append(breaks, b)
	}
	sort.Ints(breaks)
	return breaks
}

// lastBreakIn returns the largest break b with lo < b <= hi.
func lastBreakIn(breaks []int, lo, hi int) (int, bool) {
	i := sort.SearchInts(breaks, hi+1) - 1
	if i >= 0 && breaks[i] > lo {
		return breaks[i], true
	}
	return 0, false
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
