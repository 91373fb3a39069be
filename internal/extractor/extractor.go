// Package extractor turns transcript chunks into structured documents with a
// language model.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"video-docs-go/internal/chunker"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/retry"
	"video-docs-go/internal/schema"
	"video-docs-go/internal/types"
)

type Extractor struct {
	completer Completer
	provider  string
	policy    retry.Policy
	log       *logger.Logger
}

func New(completer Completer, provider string, policy retry.Policy, log *logger.Logger) *Extractor {
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy
	}
	return &Extractor{completer: completer, provider: provider, policy: policy, log: log.Component("extractor")}
}

// Extract asks the model for the structured content of one chunk. The result is
// not validated against s; only the merged document is.
func (e *Extractor) Extract(ctx context.Context, chunk chunker.Chunk, chunkIndex, chunkCount int, s *schema.Schema) (types.Content, error) {
	req := Request{
		SystemPrompt: BuildSystemPrompt(s, chunkIndex, chunkCount),
		UserContent:  chunk.Text,
	}
	log := e.log.WithFields(logrus.Fields{"chunk": chunkIndex, "chunks": chunkCount})

	notify := func(attempt int, err error, wait time.Duration) {
		log.WithField("attempt", attempt).WithField("wait", wait.String()).WithField("error", err.Error()).Warn("llm call failed, retrying")
	}
	text, err := retry.WithPolicy(ctx, e.policy, func(ctx context.Context) (string, error) {
		out, err := e.completer.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", retry.Permanent(ctx.Err())
		}
		apiErr := classify(e.provider, err)
		if !apiErr.Retryable() {
			return "", retry.Permanent(apiErr)
		}
		return "", apiErr
	}, notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		apiErr := classify(e.provider, err)
		return nil, &types.Error{
			Kind:    types.KindExtractionAPI,
			SubKind: apiErr.SubKind,
			Message: fmt.Sprintf("chunk %d: %s", chunkIndex, apiErr.Message),
			Err:     apiErr,
		}
	}

	content, err := ParseContent(text)
	if err != nil {
		return nil, types.NewError(types.KindExtractionParse, err, "chunk %d: %v", chunkIndex, err)
	}
	log.WithField("fields", len(content)).Debug("chunk extracted")
	return content, nil
}

// ExtractAll extracts every chunk with at most concurrency calls in flight and
// returns the results in chunk order. The first failure cancels the rest. With a
// concurrency of 1 chunks are extracted one after another in index order.
func (e *Extractor) ExtractAll(ctx context.Context, chunks []chunker.Chunk, s *schema.Schema, concurrency int) ([]types.Content, error) {
	ordered := append([]chunker.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	if concurrency <= 1 {
		out := make([]types.Content, 0, len(ordered))
		for _, c := range ordered {
			content, err := e.Extract(ctx, c, c.Index, len(ordered), s)
			if err != nil {
				return nil, err
			}
			out = append(out, content)
		}
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		pos     int
		content types.Content
		err     error
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan result, len(ordered))
	for pos, c := range ordered {
		go func(pos int, c chunker.Chunk) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- result{pos: pos, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			content, err := e.Extract(ctx, c, c.Index, len(ordered), s)
			results <- result{pos: pos, content: content, err: err}
		}(pos, c)
	}

	out := make([]types.Content, len(ordered))
	var firstErr error
	for range ordered {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			cancel()
		}
		out[r.pos] = r.content
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

const promptTemplate = `Analyze the following video transcription and extract key information.
You MUST format your response exactly according to this JSON schema:
%s

Guidelines:
1. The response must be valid JSON that matches the schema exactly
2. All required fields must be included
3. Break down the content into logical sections
4. Each section should have clear, actionable steps
5. Include specific materials needed for each step
6. Estimate durations for steps when possible
7. Set an appropriate difficulty level
8. Add relevant keywords for searchability

Return ONLY the JSON object. No commentary, no markdown fences.`

// BuildSystemPrompt embeds the schema as the response contract and, for multi-chunk
// transcripts, tells the model where this chunk sits.
func BuildSystemPrompt(s *schema.Schema, chunkIndex, chunkCount int) string {
	if s == nil {
		s = schema.Default()
	}
	var b strings.Builder
	fmt.Fprintf(&b, promptTemplate, s.JSON())

	if chunkCount > 1 {
		fmt.Fprintf(&b, "\n\nThis is part %d of %d of the transcription.", chunkIndex+1, chunkCount)
		switch chunkIndex {
		case 0:
			b.WriteString(" Focus on the introduction: give the overall title and summary of the video, and the sections covered in this part.")
		case chunkCount - 1:
			b.WriteString(" Focus on the conclusion and closing summary, and the sections covered in this part.")
		default:
			b.WriteString(" Only describe the content in this part; do not invent an introduction or conclusion.")
		}
	}
	return b.String()
}

// ParseContent decodes model output into a JSON object, tolerating markdown fences
// and text around it. No field is interpreted; the schema decides what is valid.
func ParseContent(text string) (types.Content, error) {
	raw := strings.TrimSpace(text)
	var content types.Content
	if err := json.Unmarshal([]byte(raw), &content); err == nil && content != nil {
		return content, nil
	}

	candidate := extractJSON(raw)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in model output: %q", truncate(raw, 200))
	}
	content = nil
	if err := json.Unmarshal([]byte(candidate), &content); err != nil {
		return nil, fmt.Errorf("invalid JSON in model output: %w", err)
	}
	return content, nil
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first. Braces inside strings are skipped.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
