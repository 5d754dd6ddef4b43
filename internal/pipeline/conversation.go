package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/qs3c/deal_anal_server/internal/pkg/reasoning"
)

// ToolInvocation 一次能力调用的记录，追加后不再修改
type ToolInvocation struct {
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Output    string          `json:"output,omitempty"`
	Err       string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// conversationState 单次 Converse 调用的内存状态，不跨任务复用
type conversationState struct {
	messages   []reasoning.Message
	iterations int
	toolCalls  []ToolInvocation
	texts      []string
	sources    []string
}

func newConversationState(userPrompt string) *conversationState {
	s := &conversationState{}
	s.messages = append(s.messages, reasoning.Message{
		Role: reasoning.RoleUser,
		Content: []reasoning.ContentBlock{
			{Type: reasoning.BlockText, Text: userPrompt},
		},
	})
	return s
}

func (s *conversationState) appendAssistant(blocks []reasoning.ContentBlock) {
	s.messages = append(s.messages, reasoning.Message{Role: reasoning.RoleAssistant, Content: blocks})
}

func (s *conversationState) appendToolResults(blocks []reasoning.ContentBlock) {
	s.messages = append(s.messages, reasoning.Message{Role: reasoning.RoleUser, Content: blocks})
}

func (s *conversationState) appendUserText(text string) {
	s.messages = append(s.messages, reasoning.Message{
		Role: reasoning.RoleUser,
		Content: []reasoning.ContentBlock{
			{Type: reasoning.BlockText, Text: text},
		},
	})
}

func (s *conversationState) recordToolCall(name string, input json.RawMessage, output string, callErr error) {
	inv := ToolInvocation{
		Name:      name,
		Input:     append(json.RawMessage(nil), input...),
		Output:    output,
		Timestamp: time.Now(),
	}
	if callErr != nil {
		inv.Err = callErr.Error()
	}
	s.toolCalls = append(s.toolCalls, inv)
}

func (s *conversationState) recordText(text string) {
	s.texts = append(s.texts, text)
}

func (s *conversationState) recordSources(sources []string) {
	s.sources = append(s.sources, sources...)
}

// collectedText 对话中累计的所有自由文本，降级结果用它当摘要
func (s *conversationState) collectedText() string {
	return strings.TrimSpace(strings.Join(s.texts, "\n"))
}
