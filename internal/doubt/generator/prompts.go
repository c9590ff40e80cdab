package generator

import (
	"fmt"
	"strings"

	"doubtdesk/internal/models"
)

// Canned responses for conversational short-circuits. Neither invokes the
// external model.
const (
	cannedIntroduction = "Hi! I'm your course assistant. Ask me anything about the material you're studying - you can also select a passage or draw a box on a slide and ask about that specific part."

	cannedSelectRegion = "Could you select the part of the material you'd like me to explain? Highlight a passage or draw a box around a region, then ask again - that way I can give you a precise answer."
)

// buildStrictRegionPrompt builds the prompt used when the grounding is a
// manually-highlighted region. It forbids timestamp/metadata mentions and
// instructs confident language anchored only to the provided window.
func buildStrictRegionPrompt(g *models.GroundingContext, query string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert tutor. A student highlighted a specific part of their course material and asked a question about it.\n\n")
	sb.WriteString("Highlighted material:\n---\n")
	sb.WriteString(g.Window)
	sb.WriteString("\n---\n\n")

	if g.CourseName != "" {
		sb.WriteString(fmt.Sprintf("Course: %s\n", g.CourseName))
	}
	if g.ContentName != "" {
		sb.WriteString(fmt.Sprintf("Material: %s\n", g.ContentName))
	}
	sb.WriteString("\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- Answer only from the highlighted material above.\n")
	sb.WriteString("- Do not mention timestamps, file names, page numbers or any other metadata.\n")
	sb.WriteString("- Be confident and direct. Do not hedge with phrases like \"it seems\" or \"possibly\".\n")
	sb.WriteString("- Use Markdown headings and bullet points where they help.\n\n")

	sb.WriteString(fmt.Sprintf("Question: %s", query))

	return sb.String()
}

// buildGeneralPrompt builds the default prompt: language policy plus a fixed
// section ordering (intro, concept, optional code, summary).
func buildGeneralPrompt(g *models.GroundingContext, query, language string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert tutor helping a student with their course material.\n\n")

	if g != nil && g.Window != "" {
		sb.WriteString("Relevant material:\n---\n")
		sb.WriteString(g.Window)
		sb.WriteString("\n---\n\n")
	}
	if g != nil && g.CourseName != "" {
		sb.WriteString(fmt.Sprintf("Course: %s\n", g.CourseName))
	}
	if g != nil && len(g.Concepts) > 0 {
		sb.WriteString(fmt.Sprintf("Related concepts: %s\n", strings.Join(g.Concepts, ", ")))
	}
	sb.WriteString("\n")

	if language == LanguageHindi {
		sb.WriteString("Language policy: respond entirely in Romanized Hindi (Hindi written in Latin script), in a friendly colloquial register. Do not mix English sentences in.\n\n")
	} else {
		sb.WriteString("Language policy: respond in full-sentence English. Do not code-switch into any other language.\n\n")
	}

	sb.WriteString("Structure the answer as:\n")
	sb.WriteString("1. A one-or-two sentence intro.\n")
	sb.WriteString("2. The concept, explained step by step with Markdown headings.\n")
	sb.WriteString("3. A code example in a fenced block, only if code genuinely helps.\n")
	sb.WriteString("4. A short summary.\n\n")

	sb.WriteString(fmt.Sprintf("Question: %s", query))

	return sb.String()
}
