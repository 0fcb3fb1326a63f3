package ollama

import (
	"fmt"
	"strings"
)

const maxMetadataSnippet = 4000

func buildMetadataPrompt(content, fallbackName string) string {
	snippet := strings.TrimSpace(content)
	if len(snippet) > maxMetadataSnippet {
		snippet = snippet[:maxMetadataSnippet]
	}

	return fmt.Sprintf(`You name documents for a knowledge base.
Return strict JSON object with keys:
name (short human readable title, at most 8 words), description (one or two sentences).
No markdown, no extra keys.
If the content gives no hint, base the name on the file name %q.

Document:
%s`, fallbackName, snippet)
}

func buildImagePrompt(format, fallbackTitle string) string {
	return fmt.Sprintf(`Describe the attached %s image for a searchable knowledge base.
Return strict JSON object with keys:
title (short title), short_description (one sentence), detailed_description (full description including any visible text, diagrams, charts and their values).
No markdown, no extra keys.
The file is named %q.`, format, fallbackTitle)
}
