// Package prompt renders retrieved passages into the system prompt sent to the
// chat model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/xhad/commons/internal/models"
)

const (
	DefaultMaxChars = 12000

	libraryHeader   = "### 📚 RELEVANT KNOWLEDGE LIBRARY"
	communityHeader = "### 💬 RELEVANT COMMUNITY CHAT"

	noDocuments = "No relevant documents."
	noMessages  = "No relevant chat history."

	dateLayout = "2006-01-02"
)

const defaultSystemTemplate = `You are %s, a helpful assistant for the %q community.
You have access to a Knowledge Library (documents) and Community Chat History (messages).

%s

### INSTRUCTIONS
- Answer the user's question based on the context provided above.
- If the answer is found in the **Knowledge Library**, cite it as a reliable source.
- If the answer is found in the **Community Chat**, mention who said it (e.g., "As Ada mentioned in the chat...").
- If the answer is not found in either, say so, but answer from general knowledge where appropriate and make clear it is not from the library.
- Be concise and professional.`

type BuilderConfig struct {
	AssistantName string
	CommunityName string
	// MaxChars bounds the passage text placed in the context block.
	MaxChars int
}

type Builder struct {
	config BuilderConfig
}

func NewWithConfig(config BuilderConfig) Builder {
	if config.AssistantName == "" {
		config.AssistantName = "Commons AI"
	}
	if config.CommunityName == "" {
		config.CommunityName = "Commons"
	}
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultMaxChars
	}
	return Builder{config: config}
}

// Assemble renders the candidates as two labelled sections, library passages
// first and chat lines second, keeping the input order inside each section.
// An entry that would take the passage text past MaxChars is skipped and
// counted in an omission note. The placeholder line is used only for a section
// that received no candidates at all.
func (b Builder) Assemble(candidates []models.RetrievalCandidate) string {
	docs := section{placeholder: noDocuments, separator: "\n\n", noun: "document"}
	chat := section{placeholder: noMessages, separator: "\n", noun: "chat message"}
	used := 0

	for _, c := range candidates {
		var (
			entry  string
			target *section
		)
		switch c.SourceType {
		case models.SourceDocument:
			entry, target = "[Document] "+c.Text, &docs
		case models.SourceMessage:
			entry, target = fmt.Sprintf("[%s] %s: %s", c.CreatedAt.Format(dateLayout), c.AuthorName, c.Text), &chat
		default:
			continue
		}

		if used+len(entry) > b.config.MaxChars {
			target.omitted++
			continue
		}
		used += len(entry)
		target.entries = append(target.entries, entry)
	}

	return libraryHeader + "\n" + docs.render() + "\n\n" + communityHeader + "\n" + chat.render()
}

type section struct {
	placeholder string
	separator   string
	noun        string
	entries     []string
	omitted     int
}

func (s section) render() string {
	if len(s.entries) == 0 && s.omitted == 0 {
		return s.placeholder
	}

	text := strings.Join(s.entries, s.separator)
	if s.omitted > 0 {
		note := fmt.Sprintf("(%d relevant %s omitted for length.)", s.omitted, plural(s.noun, s.omitted))
		if text == "" {
			return note
		}
		text += s.separator + note
	}
	return text
}

func plural(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

// SystemPrompt wraps an assembled context block with the assistant persona
// and answering instructions.
func (b Builder) SystemPrompt(contextBlock string) string {
	return fmt.Sprintf(defaultSystemTemplate, b.config.AssistantName, b.config.CommunityName, contextBlock)
}
