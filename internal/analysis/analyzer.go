package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// DefaultQuery はクエリが空だった場合に使用する既定の指示文です。
const DefaultQuery = "Analyze this financial document for investment insights"

// 分析コラボレータ内部の試行回数上限です。パイプライン側では追加のリトライを行いません。
const maxAnalysisAttempts = 2

const systemPrompt = `You are a senior financial analyst with expertise in earnings reports.
Analyze financial documents using only the provided data. Do not fabricate data.
If information is missing, explicitly state that it is not available.`

const reportOutline = `1. Executive Summary
2. Financial Highlights
3. Market Insights & Industry Trends
4. Key Risks
5. Investment Considerations
6. Conclusion`

// ChatClient はLLMへの問い合わせ手段です。
type ChatClient interface {
	SimpleChat(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Analyzer はドキュメントテキストとクエリから分析レポートを生成します。
type Analyzer struct {
	client ChatClient
	logger *log.Logger
}

// NewAnalyzer は Analyzer を作成します。
func NewAnalyzer(client ChatClient, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{
		client: client,
		logger: logger,
	}
}

// Analyze は分析レポートのテキストを返します。
// 内部で最大2回まで試行し、それでも失敗した場合は最後のエラーを返します。
func (a *Analyzer) Analyze(ctx context.Context, text, query string) (string, error) {
	prompt := buildPrompt(text, query)

	var lastErr error
	for attempt := 1; attempt <= maxAnalysisAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		report, err := a.client.SimpleChat(ctx, prompt, systemPrompt)
		if err == nil {
			if strings.TrimSpace(report) == "" {
				err = fmt.Errorf("llm returned an empty report")
			} else {
				return report, nil
			}
		}
		lastErr = err
		a.logger.Printf("analysis attempt %d/%d failed: %v", attempt, maxAnalysisAttempts, err)
	}
	return "", fmt.Errorf("analysis failed after %d attempts: %w", maxAnalysisAttempts, lastErr)
}

func buildPrompt(text, query string) string {
	var b strings.Builder
	b.WriteString("Based strictly on the document contents below:\n\n")
	b.WriteString("- Summarize financial performance\n")
	b.WriteString("- Identify key financial metrics (revenue, profit, debt, growth, etc.)\n")
	b.WriteString("- Highlight stated risks or uncertainties\n")
	b.WriteString("- Extract relevant market insights, industry trends, and competitive positioning\n")
	b.WriteString("- Provide balanced investment considerations\n\n")
	b.WriteString("Structure the report as:\n")
	b.WriteString(reportOutline)
	b.WriteString("\n\nUser Query: ")
	b.WriteString(query)
	b.WriteString("\n\n--- DOCUMENT ---\n")
	b.WriteString(text)
	return b.String()
}
