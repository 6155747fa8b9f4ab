package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xhad/commons/internal/models"
)

const (
	DefaultMaxTokensPerChunk = 500
	DefaultMaxChunks         = 10

	// A token is approximated as four characters; there is no real tokenizer.
	charsPerToken = 4
)

var sentenceBoundary = regexp.MustCompile(`[.?!]\s+`)

type ProcessorConfig struct {
	MaxTokensPerChunk int
	// MaxChunks caps how many chunks of one document are indexed.
	MaxChunks int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxTokensPerChunk <= 0 {
		config.MaxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	if config.MaxChunks <= 0 {
		config.MaxChunks = DefaultMaxChunks
	}

	return Processor{
		config: config,
	}
}

// Process normalizes the document text and splits it into the chunks that
// will be embedded. Only the first MaxChunks chunks are kept; the document
// content itself is never shortened.
func (p *Processor) Process(doc models.Document) models.ProcessedDocument {
	doc.Content = NormalizeWhitespace(doc.Content)

	chunks := Chunk(doc.Content, p.config.MaxTokensPerChunk)

	truncated := false
	if len(chunks) > p.config.MaxChunks {
		chunks = chunks[:p.config.MaxChunks]
		truncated = true
	}

	return models.ProcessedDocument{
		Document:  doc,
		Chunks:    chunks,
		Truncated: truncated,
	}
}

// NormalizeWhitespace collapses whitespace runs into single spaces and trims the ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Chunk greedily packs sentences into chunks of at most maxTokensPerChunk*4
// characters. A sentence longer than the budget is emitted as its own
// oversized chunk and is not split further.
func Chunk(text string, maxTokensPerChunk int) []string {
	if maxTokensPerChunk <= 0 {
		maxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	chunkSize := maxTokensPerChunk * charsPerToken

	var chunks []string
	current := strings.Builder{}
	currentLen := 0

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range splitIntoSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		appended := currentLen + sentenceLen
		if currentLen > 0 {
			appended++ // joining space
		}

		// If adding this sentence would exceed chunk size
		if appended > chunkSize {
			flush()
		} else if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}

		current.WriteString(sentence)
		currentLen += sentenceLen
	}
	flush()

	return chunks
}

// splitIntoSentences cuts text after every '.', '?' or '!' that is followed
// by whitespace. The whitespace between sentences is dropped.
func splitIntoSentences(text string) []string {
	var sentences []string

	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := text[start : loc[0]+1]; s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}

	// Add any remaining text
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}
