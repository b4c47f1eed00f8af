package seeder

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// ContentProcessor cleans scraped manual content and prepares it for
// chunking and embedding.
type ContentProcessor struct {
	multiWhitespace *regexp.Regexp
	htmlTags        *regexp.Regexp
	listMarkers     *regexp.Regexp
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{
		multiWhitespace: regexp.MustCompile(`[ \t]+`),
		htmlTags:        regexp.MustCompile(`<[^>]*>`),
		listMarkers:     regexp.MustCompile(`(?m)^\s*[\*\x{2022}\-]\s+`),
	}
}

// CleanContent removes markup and normalizes whitespace.
func (cp *ContentProcessor) CleanContent(content string) string {
	content = cp.htmlTags.ReplaceAllString(content, "")
	content = cp.listMarkers.ReplaceAllString(content, "- ")
	content = cp.multiWhitespace.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	var cleaned []string
	emptyLines := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			emptyLines++
			if emptyLines <= 2 {
				cleaned = append(cleaned, "")
			}
		} else {
			emptyLines = 0
			cleaned = append(cleaned, line)
		}
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// Symptom vocabulary used for keyword extraction from manual content.
var symptomKeywords = []string{
	"not draining", "not heating", "not cooling", "not spinning",
	"not starting", "not turning on", "leaking", "leak", "noise",
	"noisy", "vibrating", "shaking", "error code", "flashing",
	"blinking", "smell", "burning", "overflow", "frozen", "ice",
	"clogged", "blocked", "stuck", "door", "latch", "seal", "gasket",
	"filter", "hose", "pump", "valve", "thermostat", "heating element",
	"compressor", "drain", "drum", "belt", "motor", "fuse",
}

// ExtractKeywords pulls symptom and component terms out of content for
// the exact-match keyword column.
func (cp *ContentProcessor) ExtractKeywords(content string) []string {
	var keywords []string
	contentLower := strings.ToLower(content)

	for _, keyword := range symptomKeywords {
		if strings.Contains(contentLower, keyword) {
			keywords = append(keywords, keyword)
		}
	}

	return removeDuplicates(keywords)
}

var toolKeywords = []string{
	"screwdriver", "phillips screwdriver", "flathead screwdriver",
	"wrench", "pipe wrench", "adjustable wrench", "pliers",
	"needle-nose pliers", "multimeter", "nut driver", "socket set",
	"flashlight", "torx bit", "hex key", "putty knife", "towel",
	"bucket", "shop vacuum", "gloves",
}

// ExtractToolMentions finds repair tools named in content, most
// specific first so "pipe wrench" beats "wrench".
func (cp *ContentProcessor) ExtractToolMentions(content string) []string {
	contentLower := strings.ToLower(content)

	var matched []string
	for _, tool := range toolKeywords {
		if strings.Contains(contentLower, tool) {
			matched = append(matched, tool)
		}
	}

	// Longest terms claim their text first, so a generic term is only
	// kept when no selected term subsumes it.
	sort.SliceStable(matched, func(i, j int) bool {
		return len(matched[i]) > len(matched[j])
	})

	var tools []string
	for _, tool := range matched {
		covered := false
		for _, existing := range tools {
			if strings.Contains(existing, tool) {
				covered = true
				break
			}
		}
		if !covered {
			tools = append(tools, tool)
		}
	}

	return tools
}

// SplitIntoChunks splits content into embedding-sized pieces along
// paragraph boundaries, falling back to sentences for long paragraphs.
func (cp *ContentProcessor) SplitIntoChunks(content string, maxChunkSize int) []string {
	if len(content) <= maxChunkSize {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var chunks []string
	var currentChunk strings.Builder

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if currentChunk.Len() > 0 && currentChunk.Len()+len(paragraph)+2 > maxChunkSize {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			currentChunk.Reset()
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString("\n\n")
		}
		currentChunk.WriteString(paragraph)
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	var finalChunks []string
	for _, chunk := range chunks {
		if len(chunk) <= maxChunkSize {
			finalChunks = append(finalChunks, chunk)
		} else {
			finalChunks = append(finalChunks, cp.splitBySentences(chunk, maxChunkSize)...)
		}
	}

	return finalChunks
}

func (cp *ContentProcessor) splitBySentences(text string, maxSize int) []string {
	sentences := regexp.MustCompile(`[.!?]+\s+`).Split(text, -1)
	var chunks []string
	var currentChunk strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if currentChunk.Len() > 0 && currentChunk.Len()+len(sentence)+2 > maxSize {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			currentChunk.Reset()
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString(". ")
		}
		currentChunk.WriteString(sentence)
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

// ClassifyContentType buckets manual content for the content_type
// column.
func (cp *ContentProcessor) ClassifyContentType(content string) string {
	contentLower := strings.ToLower(content)

	switch {
	case strings.Contains(contentLower, "troubleshoot") || strings.Contains(contentLower, "error code"):
		return "troubleshooting"
	case strings.Contains(contentLower, "maintenance") || strings.Contains(contentLower, "clean"):
		return "maintenance"
	case strings.Contains(contentLower, "install") || strings.Contains(contentLower, "setup"):
		return "installation"
	default:
		return "manual_section"
	}
}

// EstimateComplexity scores a repair 1-10 from step count and tool
// mentions.
func (cp *ContentProcessor) EstimateComplexity(content string) int {
	steps := len(regexp.MustCompile(`(?m)^\s*(\d+[\.\)]|-)\s+`).FindAllString(content, -1))
	tools := len(cp.ExtractToolMentions(content))

	score := 1 + steps/2 + tools
	if score > 10 {
		score = 10
	}
	return score
}

// CountWords estimates the word count of a chunk.
func (cp *ContentProcessor) CountWords(text string) int {
	if text == "" {
		return 0
	}

	words := strings.FieldsFunc(text, func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	})

	count := 0
	for _, word := range words {
		if len(strings.TrimSpace(word)) > 1 {
			count++
		}
	}

	return count
}

func removeDuplicates(items []string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
