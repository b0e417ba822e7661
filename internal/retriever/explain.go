package retriever

import (
	"fmt"
	"strings"
)

// previewLen bounds the content excerpt in explain output.
const previewLen = 120

// Explain renders a human-readable trace of ranked results, one block
// per result with its category, total score, sub-scores, title, concepts
// and a short content preview. For debugging and auditing only.
func Explain(qctx QueryContext, results []Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "query: %s\n", qctx.Query)
	fmt.Fprintf(&sb, "type: %s\n", qctx.Type)
	if len(qctx.RequiredConcepts) > 0 {
		fmt.Fprintf(&sb, "required concepts: %s\n", strings.Join(qctx.RequiredConcepts, ", "))
	}
	fmt.Fprintf(&sb, "results: %d\n", len(results))

	for _, res := range results {
		chunk := res.Candidate.Chunk
		fmt.Fprintf(&sb, "\n#%d [%s] score=%.3f\n", res.Rank, chunk.Category, res.Score)
		fmt.Fprintf(&sb, "  similarity=%.3f concept=%.3f category=%.3f context=%.3f boost=%.3f\n",
			res.SubScores.Similarity, res.SubScores.Concept,
			res.SubScores.Category, res.SubScores.Context, res.SubScores.TypeBoost)
		if chunk.Title != "" {
			fmt.Fprintf(&sb, "  title: %s\n", chunk.Title)
		}
		if len(chunk.Concepts) > 0 {
			fmt.Fprintf(&sb, "  concepts: %s\n", strings.Join(chunk.Concepts, ", "))
		}
		fmt.Fprintf(&sb, "  preview: %s\n", preview(chunk.Content))
	}

	return sb.String()
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= previewLen {
		return content
	}
	cut := previewLen
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut] + "..."
}
