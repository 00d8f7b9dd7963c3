package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAnswerer answers questions with a chat completion constrained to
// the loaded answer corpus.
type OpenAIAnswerer struct {
	client  *openai.Client
	model   string
	answers []string
}

// NewOpenAIAnswerer builds the answerer. The corpus keeps the model on
// script: it may only reply with one of the prepared answers.
func NewOpenAIAnswerer(apiKey, model string, answers []string) (*OpenAIAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("answer corpus is empty")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAnswerer{client: &c, model: model, answers: answers}, nil
}

func (a *OpenAIAnswerer) FindBestAnswer(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`You are a support FAQ matcher. Below is the list of prepared answers,
one per block. Reply with the single block that best answers the user's
question, verbatim, and nothing else.

## Answers
%s

## Question
%s
`, strings.Join(a.answers, "\n---\n"), question)

	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: a.model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	return response.Choices[0].Message.Content, nil
}
