package faq

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Answerer is the automated answer pipeline consumed by the
// orchestrator. Implementations are interchangeable black boxes.
type Answerer interface {
	FindBestAnswer(ctx context.Context, question string) (string, error)
}

// MarkdownAnswerer serves answers from a markdown file of candidate
// answers separated by "---" lines, picking the one with the highest
// lexical overlap with the question.
type MarkdownAnswerer struct {
	answers []string
}

// NewMarkdownAnswerer loads and parses the answers file.
func NewMarkdownAnswerer(filename string) (*MarkdownAnswerer, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	answers := ParseAnswers(string(raw))
	if len(answers) == 0 {
		return nil, fmt.Errorf("answers file %s contains no answers", filename)
	}
	return &MarkdownAnswerer{answers: answers}, nil
}

// ParseAnswers splits the answers corpus on "---" separator lines.
func ParseAnswers(raw string) []string {
	var answers []string
	for _, block := range strings.Split(raw, "\n---\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			answers = append(answers, block)
		}
	}
	return answers
}

// Answers exposes the loaded corpus, used by the OpenAI answerer to
// constrain its replies.
func (a *MarkdownAnswerer) Answers() []string {
	return a.answers
}

// FindBestAnswer returns the candidate sharing the most terms with the
// question. It always answers; relevance is judged downstream by the
// user's feedback.
func (a *MarkdownAnswerer) FindBestAnswer(ctx context.Context, question string) (string, error) {
	terms := tokenize(question)
	best := a.answers[0]
	bestScore := -1
	for _, candidate := range a.answers {
		score := overlap(terms, tokenize(candidate))
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, nil
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		field = strings.Trim(field, ".,!?:;\"'()")
		if len(field) > 2 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for token := range a {
		if _, ok := b[token]; ok {
			count++
		}
	}
	return count
}
