package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/pkg/reasoning"
	"github.com/qs3c/deal_anal_server/internal/pkg/retry"
	"github.com/qs3c/deal_anal_server/internal/pkg/search"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
)

// EmitFunc 引擎向外透传事件的出口，签名与 stream.Emitter.Send 一致
type EmitFunc func(eventType string, payload interface{})

// Outcome 一次对话的产出。Result 是终态结果（可能带 IsPartial），
// ToolCalls 是完整的调用日志，随任务落库
type Outcome struct {
	Result     *model.AnalysisResult
	ToolCalls  []ToolInvocation
	Iterations int
}

// Engine 驱动与推理服务的多轮工具调用对话。无内部状态，
// 可被多个任务并发复用
type Engine struct {
	reasoning reasoning.Client
	search    search.Client
	cfg       *config.PipelineConfig
	policy    retry.Policy
}

func NewEngine(rc reasoning.Client, sc search.Client, cfg *config.PipelineConfig) *Engine {
	return &Engine{
		reasoning: rc,
		search:    sc,
		cfg:       cfg,
		policy: retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
		},
	}
}

// Converse 跑完一次完整对话：循环调用推理服务，执行其请求的
// search，直到 emit_result 或迭代耗尽。墙钟预算到期后降级为
// 部分结果而不是报错
func (e *Engine) Converse(ctx context.Context, jobID int64, userPrompt string, emit EmitFunc) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.WallClockBudget())
	defer cancel()

	state := newConversationState(userPrompt)

	for state.iterations < e.cfg.MaxIterations {
		state.iterations++

		resp, err := e.callModel(ctx, state, nil)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Job %d: wall clock budget exhausted at iteration %d, degrading to partial result", jobID, state.iterations)
				return e.partialOutcome(state), nil
			}
			return nil, &StageError{Step: "reasoning", Err: err}
		}

		result, sawToolUse, err := e.processResponse(ctx, jobID, state, resp, emit)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return &Outcome{Result: result, ToolCalls: state.toolCalls, Iterations: state.iterations}, nil
		}
		if !sawToolUse {
			return nil, &ConversationError{Reason: "response contained no tool invocation"}
		}

		if ctx.Err() != nil {
			log.Printf("Job %d: wall clock budget exhausted after iteration %d, degrading to partial result", jobID, state.iterations)
			return e.partialOutcome(state), nil
		}
	}

	// 迭代耗尽：给模型最后一次机会，强制只允许 emit_result。
	// 这一步再失败就降级为部分结果
	log.Printf("Job %d: iteration cap reached, forcing final emit_result", jobID)
	return e.forceEmit(ctx, jobID, state)
}

func (e *Engine) callModel(ctx context.Context, state *conversationState, choice *reasoning.ToolChoice) (*reasoning.Response, error) {
	return retry.Do(ctx, e.policy, func() (*reasoning.Response, error) {
		return e.reasoning.CreateMessage(ctx, &reasoning.Request{
			System:     systemPrompt,
			Messages:   state.messages,
			Tools:      toolDefinitions(),
			ToolChoice: choice,
		})
	})
}

// processResponse 消化一条助手回复：文本块透传为 delta 事件，
// search 逐个顺序执行并把结果（或失败说明）拼成 tool_result，
// emit_result 校验通过即终结对话
func (e *Engine) processResponse(ctx context.Context, jobID int64, state *conversationState, resp *reasoning.Response, emit EmitFunc) (*model.AnalysisResult, bool, error) {
	state.appendAssistant(resp.Content)

	var toolResults []reasoning.ContentBlock
	sawToolUse := false
	searches := 0

	for _, block := range resp.Content {
		switch block.Type {
		case reasoning.BlockText:
			if block.Text == "" {
				continue
			}
			state.recordText(block.Text)
			emit(stream.EventDelta, stream.DeltaPayload{Text: block.Text})

		case reasoning.BlockToolUse:
			sawToolUse = true

			switch block.Name {
			case ToolEmitResult:
				result, err := parseEmitResult(block.Input, e.cfg.MinSummaryLength)
				state.recordToolCall(ToolEmitResult, block.Input, "", err)
				if err != nil {
					return nil, true, err
				}
				return result, true, nil

			case ToolSearch:
				toolResults = append(toolResults, e.runSearch(ctx, jobID, state, block, &searches))

			default:
				log.Printf("Job %d: unknown tool %q requested", jobID, block.Name)
				toolResults = append(toolResults, toolErrorResult(block.ID, fmt.Sprintf("未知工具 %q", block.Name)))
			}
		}
	}

	if len(toolResults) > 0 {
		state.appendToolResults(toolResults)
	}
	return nil, sawToolUse, nil
}

// runSearch 执行一次 search 调用。检索失败不终止流水线，
// 失败说明作为 tool_result 回传给模型
func (e *Engine) runSearch(ctx context.Context, jobID int64, state *conversationState, block reasoning.ContentBlock, searches *int) reasoning.ContentBlock {
	if *searches >= e.cfg.MaxSearchesPerTurn {
		state.recordToolCall(ToolSearch, block.Input, "", fmt.Errorf("per-turn search limit reached"))
		return toolErrorResult(block.ID, fmt.Sprintf("本轮检索次数已达上限（%d 次），请基于已有信息继续", e.cfg.MaxSearchesPerTurn))
	}
	*searches++

	in, err := parseSearchInput(block.Input)
	if err != nil {
		log.Printf("Job %d: malformed search input: %v", jobID, err)
		state.recordToolCall(ToolSearch, block.Input, "", err)
		return toolErrorResult(block.ID, "检索入参不合法："+err.Error())
	}

	result, err := e.search.Search(ctx, in.Query, in.Depth)
	if err != nil {
		log.Printf("Job %d: search %q failed: %v", jobID, in.Query, err)
		state.recordToolCall(ToolSearch, block.Input, "", err)
		return toolErrorResult(block.ID, "检索失败："+err.Error())
	}

	state.recordToolCall(ToolSearch, block.Input, result.Answer, nil)
	state.recordSources(result.Sources)

	content := result.Answer
	if len(result.Sources) > 0 {
		content += "\n\n来源：\n" + strings.Join(result.Sources, "\n")
	}
	return reasoning.ContentBlock{
		Type:      reasoning.BlockToolResult,
		ToolUseID: block.ID,
		Content:   content,
	}
}

// forceEmit 迭代耗尽后的最后一次调用，tool_choice 锁定 emit_result。
// 这条路径上的任何失败都降级为部分结果
func (e *Engine) forceEmit(ctx context.Context, jobID int64, state *conversationState) (*Outcome, error) {
	state.appendUserText("迭代次数已用完。请立即调用 emit_result 提交当前结论，信息不全的字段填 null。")

	resp, err := e.callModel(ctx, state, &reasoning.ToolChoice{Type: "tool", Name: ToolEmitResult})
	if err != nil {
		log.Printf("Job %d: forced emit_result call failed: %v", jobID, err)
		return e.partialOutcome(state), nil
	}

	for _, block := range resp.Content {
		if block.Type != reasoning.BlockToolUse || block.Name != ToolEmitResult {
			continue
		}
		result, err := parseEmitResult(block.Input, e.cfg.MinSummaryLength)
		state.recordToolCall(ToolEmitResult, block.Input, "", err)
		if err != nil {
			log.Printf("Job %d: forced emit_result payload invalid: %v", jobID, err)
			return e.partialOutcome(state), nil
		}
		state.iterations++
		return &Outcome{Result: result, ToolCalls: state.toolCalls, Iterations: state.iterations}, nil
	}

	log.Printf("Job %d: forced emit_result call returned no tool invocation", jobID)
	return e.partialOutcome(state), nil
}

// partialOutcome 用对话里累计的文本和检索来源拼一个尽力而为的
// 部分结果，跳过结构化校验
func (e *Engine) partialOutcome(state *conversationState) *Outcome {
	summary := state.collectedText()
	if summary == "" {
		summary = "分析未能在预算内完成，暂无可用结论。"
	}
	return &Outcome{
		Result: &model.AnalysisResult{
			Summary:   summary,
			Sources:   dedupSources(state.sources),
			IsPartial: true,
		},
		ToolCalls:  state.toolCalls,
		Iterations: state.iterations,
	}
}

func toolErrorResult(toolUseID, message string) reasoning.ContentBlock {
	return reasoning.ContentBlock{
		Type:      reasoning.BlockToolResult,
		ToolUseID: toolUseID,
		Content:   message,
		IsError:   true,
	}
}

func dedupSources(in []string) model.StringArray {
	seen := make(map[string]struct{}, len(in))
	out := make(model.StringArray, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
