package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// CompletionText 返回第一个选项的文本。
// 缺少选项或文本为空白时返回 ErrEmptyCompletion。
func CompletionText(resp *ChatResponse) (string, error) {
	provider := ""
	if resp != nil {
		provider = resp.Provider
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", &Error{
			Code:       ErrEmptyCompletion,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Provider:   provider,
		}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &Error{
			Code:       ErrEmptyCompletion,
			Message:    "model returned empty content",
			HTTPStatus: http.StatusBadGateway,
			Provider:   provider,
		}
	}
	return text, nil
}
