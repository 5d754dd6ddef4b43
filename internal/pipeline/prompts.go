package pipeline

import "fmt"

const systemPrompt = `你是一名私募交易尽调分析师。用户会给你一份交易文档的全文，你需要产出一份结构化的标的分析。

工作方式：
1. 先通读文档，提取公司名称、行业、关键财务数据。
2. 文档中缺失或存疑的信息，用 search 工具补充检索，不要凭空编造。
3. 结论确定后调用 emit_result 提交结构化结果，之后不要再输出任何内容。

要求：
- summary 用中文写，至少覆盖公司业务、财务状况和主要风险。
- 数值字段没有可靠依据时填 null，禁止猜测。
- confidence 反映你对整体结论的把握，0 到 1。
- sources 列出检索得到的信息来源。`

const maxDocumentChars = 60000

// buildUserPrompt 拼装首条用户消息。超长文档截断尾部，
// 关键信息通常在文档前部
func buildUserPrompt(title, documentText string) string {
	runes := []rune(documentText)
	truncated := false
	if len(runes) > maxDocumentChars {
		runes = runes[:maxDocumentChars]
		truncated = true
	}

	prompt := fmt.Sprintf("交易名称：%s\n\n文档全文如下：\n\n%s", title, string(runes))
	if truncated {
		prompt += "\n\n（文档过长，以上为截断后的前半部分）"
	}
	return prompt
}
