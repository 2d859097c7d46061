package ai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var ErrEmptyCompletion = errors.New("ai: empty completion")

type OpenAIResponder struct {
	client       *openai.Client
	model        string
	systemPrompt string
	log          *logrus.Logger
}

func NewOpenAIResponder(apiKey, model, systemPrompt string, log *logrus.Logger) *OpenAIResponder {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client:       openai.NewClient(apiKey),
		model:        model,
		systemPrompt: systemPrompt,
		log:          log,
	}
}

func (c *OpenAIResponder) Respond(ctx context.Context, history []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)

	if c.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}

	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		c.log.WithError(err).Warn("openai completion failed")
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	reply := resp.Choices[0].Message.Content
	c.log.WithField("chars", len(reply)).Debug("openai completion received")
	return reply, nil
}
