package rag

import (
	"fmt"
	"strings"
)

// systemPrompt is the base instruction for every query.
const systemPrompt = `You are Archon, a system engineering expert assistant. Your role is to help engineers and agents understand product architecture by providing accurate information from documentation.

Provide a clear, accurate answer based on the documentation. If the documentation doesn't contain enough information to answer fully, acknowledge this. Always cite the specific documents you reference.`

// noContextNotice is appended when retrieval returns nothing. The decline
// behavior lives in the prompt, not in a code branch.
const noContextNotice = `No relevant context was found in the documentation for this question. Tell the user the documentation does not cover their question; do not answer from general knowledge.`

// buildSystemPrompt assembles the system instruction plus the retrieved
// context block, each chunk tagged with its source.
func buildSystemPrompt(citations []Citation) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nContext from documentation:\n")

	if len(citations) == 0 {
		b.WriteString(noContextNotice)
		return b.String()
	}

	for i, c := range citations {
		fmt.Fprintf(&b, "\nDocument %d (from %s/%s):\n%s\n", i+1, c.RepositoryURL, c.FilePath, c.Excerpt)
	}
	return b.String()
}
