package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/engramdev/engram/pkg/llm"
	"github.com/engramdev/engram/pkg/types"
)

// ExtractionResult is the extractor's decision about a message. When
// ShouldRemember is false the remaining fields are meaningless.
type ExtractionResult struct {
	ShouldRemember bool             `json:"should_remember"`
	Content        string           `json:"content,omitempty"`
	MemoryType     types.MemoryType `json:"memory_type,omitempty"`
	Importance     float64          `json:"importance"`
	Tags           []string         `json:"tags,omitempty"`
}

// skipExtraction is the universal "do not remember" result.
var skipExtraction = ExtractionResult{ShouldRemember: false}

// Extractor asks an LLM whether, what and how importantly to remember a
// message. Extraction is advisory and best-effort: every provider error,
// timeout or parse failure yields ShouldRemember=false with a logged
// warning, never an error on the primary response path. The underlying
// model is non-deterministic; tests mock the TextGenerator.
type Extractor struct {
	gen     llm.TextGenerator
	timeout time.Duration
	onError func() // counter hook, may be nil
}

// NewExtractor creates an extractor over the given generator. A nil
// generator produces a disabled extractor that never remembers.
func NewExtractor(gen llm.TextGenerator, timeout time.Duration, onError func()) *Extractor {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Extractor{gen: gen, timeout: timeout, onError: onError}
}

// Enabled reports whether a completion provider is configured.
func (e *Extractor) Enabled() bool {
	return e != nil && e.gen != nil
}

// Extract classifies the message. The optional extra context string is
// appended to the instruction so callers can supply conversation state.
func (e *Extractor) Extract(ctx context.Context, message, extraContext string) ExtractionResult {
	if !e.Enabled() {
		return skipExtraction
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gen.Complete(ctx, buildExtractionPrompt(message, extraContext))
	if err != nil {
		log.Printf("WARNING: extraction call failed (model=%s): %v", e.gen.Model(), err)
		e.fail()
		return skipExtraction
	}

	result, err := parseExtraction(raw)
	if err != nil {
		log.Printf("WARNING: extraction parse failed: %v", err)
		e.fail()
		return skipExtraction
	}
	return result
}

func (e *Extractor) fail() {
	if e.onError != nil {
		e.onError()
	}
}

// buildExtractionPrompt renders the structured classification instruction.
func buildExtractionPrompt(message, extraContext string) string {
	var b strings.Builder
	b.WriteString("You decide what an assistant should remember from a message.\n")
	b.WriteString("Respond with ONLY a JSON object, no extra text:\n")
	b.WriteString(`{"should_remember": bool, "content": "what to remember, rephrased as a standalone statement", "memory_type": "working|factual|episodic|semantic", "importance": 0.0-1.0, "tags": ["..."]}`)
	b.WriteString("\n\nRemember durable facts, preferences, decisions and general knowledge. ")
	b.WriteString("Do not remember small talk, transient requests or anything already obvious from context.\n")
	if extraContext != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(extraContext)
		b.WriteString("\n")
	}
	b.WriteString("\nMessage:\n")
	b.WriteString(message)
	return b.String()
}

// parseExtraction parses the LLM reply into an ExtractionResult. Invalid
// field values are repaired where possible (clamped importance, default
// mid-range importance, dropped unknown memory type) rather than failing
// the whole extraction; only malformed JSON is an error.
func parseExtraction(raw string) (ExtractionResult, error) {
	cleaned := extractJSON(raw)

	var result ExtractionResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return skipExtraction, fmt.Errorf("failed to parse extraction JSON: %w", err)
	}

	if !result.ShouldRemember {
		return skipExtraction, nil
	}
	if strings.TrimSpace(result.Content) == "" {
		return skipExtraction, fmt.Errorf("extraction asked to remember empty content")
	}

	if result.MemoryType != "" && !types.IsValidMemoryType(result.MemoryType) {
		log.Printf("WARNING: extraction returned unknown memory type %q, dropping it", result.MemoryType)
		result.MemoryType = ""
	}

	// Importance defaults to mid-range when unspecified and is clamped
	// to [0, 1] otherwise.
	if result.Importance == 0 {
		result.Importance = 0.5
	}
	if result.Importance < 0 {
		result.Importance = 0
	}
	if result.Importance > 1 {
		result.Importance = 1
	}

	return result, nil
}

// extractJSON extracts the first complete JSON object from a string that
// may contain surrounding prose or markdown fences, which LLMs add despite
// instructions. Brace matching is string-aware so braces inside values do
// not confuse it. When no complete object is found the input is returned
// as-is and the JSON parser reports the failure.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
