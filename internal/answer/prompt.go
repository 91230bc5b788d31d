package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSystemPrompt frames the assistant for chat turns.
const DefaultSystemPrompt = `You are a legal information assistant for people in India.
Explain legal concepts, documents and procedures in plain language.
When document excerpts are provided, ground your answer in them and say which part you rely on.
If the excerpts do not cover the question, say so and answer from general knowledge.
You do not give legal advice; suggest consulting a qualified lawyer for decisions with legal consequences.`

const analysisPrompt = `You are a legal document analyst. Analyze the document you are given and respond in markdown with these sections:
1. Document type
2. Summary
3. Key clauses
4. Rights and obligations of each party
5. Risks or unusual terms
6. Recommended actions
7. Relevant laws
Be specific and quote short passages where it helps.`

var languageInstructions = map[string]string{
	"ta": "Respond primarily in Tamil (தமிழ்). Keep legal terms in English in brackets where helpful.",
	"hi": "Respond primarily in Hindi (हिन्दी). Keep legal terms in English in brackets where helpful.",
}

// systemInstruction appends document and language hints to base.
func systemInstruction(base, documentName, language string) string {
	var b strings.Builder
	b.WriteString(base)
	if documentName != "" {
		fmt.Fprintf(&b, "\n\nThe user is asking about the document %q.", documentName)
	}
	if extra, ok := languageInstructions[language]; ok {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// truncate cuts content to roughly maxTokens tokens at four characters per token.
func truncate(content string, maxTokens int) (string, bool) {
	maxChars := maxTokens * 4
	if maxTokens <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content, false
	}
	return string([]rune(content)[:maxChars]), true
}
