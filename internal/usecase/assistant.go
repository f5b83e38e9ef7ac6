package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const (
	minQuestionLength   = 5
	askContextRecords   = 15
	answerSources       = 3
	summaryContextRunes = 400
	defaultAnswerTokens = 1500
	answerTemperature   = 0.3

	noDataAnswer = "I don't have enough civic data yet to answer that question. Please upload some documents first!"
	noChatData   = "I don't have any civic data available yet. Please upload some documents first."
)

const askSystemPrompt = `You are a civic data analyst for the town. Answer questions using ONLY the civic documents provided.
Be specific and cite actual numbers, percentages and dollar amounts. Explain in plain English.
If the documents do not contain the answer, say so honestly.
Start with a direct answer, then give the supporting facts and what they mean for residents. Keep it under 300 words.`

const chatSystemPrompt = `You are a conversational assistant that helps residents understand their town government.
Answer clearly in plain English using specific numbers from the civic documents below, keep the conversation context,
mention which document the information comes from, and say so honestly when you do not know.

Available civic data:
`

// AssistantDeps wires the Q&A use case.
type AssistantDeps struct {
	Providers  []ports.LLMProvider
	Repository ports.RecordRepository
	Logger     *slog.Logger
	MaxTokens  int
	Timeout    time.Duration
}

// Assistant answers questions about stored records.
type Assistant struct {
	providers []ports.LLMProvider
	repo      ports.RecordRepository
	logger    *slog.Logger
	maxTokens int
	timeout   time.Duration
}

// NewAssistant builds the Q&A use case; providers are tried in order.
func NewAssistant(deps AssistantDeps) *Assistant {
	maxTokens := deps.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnswerTokens
	}
	return &Assistant{
		providers: deps.Providers,
		repo:      deps.Repository,
		logger:    orDiscard(deps.Logger),
		maxTokens: maxTokens,
		timeout:   deps.Timeout,
	}
}

// Ask answers a single question from the newest records.
func (a *Assistant) Ask(ctx context.Context, question string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) < minQuestionLength {
		return domain.Answer{}, fmt.Errorf("%w: please ask a more specific question", domain.ErrValidationFailed)
	}

	records, err := a.repo.List(ctx, ports.RecordFilter{Limit: askContextRecords})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return domain.Answer{Text: noDataAnswer, Sources: []string{}, Confidence: "low"}, nil
	}

	prompt := fmt.Sprintf("Question from a resident: %s\n\nAvailable civic data:\n%s\n\nAnswer the question using this data. Be specific and cite numbers.",
		question, askContext(records))

	text, attempt, err := a.complete(ctx, ports.CompletionRequest{System: askSystemPrompt, Prompt: prompt})
	if err != nil {
		return domain.Answer{}, err
	}

	confidence := "high"
	if attempt > 0 {
		confidence = "medium"
	}
	sources := make([]string, 0, answerSources)
	for _, r := range head(records, answerSources) {
		sources = append(sources, r.Title)
	}
	return domain.Answer{Text: text, Sources: sources, Confidence: confidence}, nil
}

// Chat answers the last user message of a conversation, sending the earlier
// turns as history.
func (a *Assistant) Chat(ctx context.Context, messages []domain.ChatMessage) (domain.Answer, error) {
	if len(messages) == 0 {
		return domain.Answer{}, fmt.Errorf("%w: no messages provided", domain.ErrValidationFailed)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return domain.Answer{}, fmt.Errorf("%w: last message must be from user", domain.ErrValidationFailed)
	}
	if strings.TrimSpace(last.Content) == "" {
		return domain.Answer{}, fmt.Errorf("%w: empty question", domain.ErrValidationFailed)
	}

	records, err := a.repo.List(ctx, ports.RecordFilter{})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return domain.Answer{Text: noChatData, Sources: []string{}}, nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nGive a clear, conversational answer based on the available civic data. Mention which document the information comes from.", last.Content)
	text, _, err := a.complete(ctx, ports.CompletionRequest{
		System:  chatSystemPrompt + chatContext(records),
		History: messages[:len(messages)-1],
		Prompt:  prompt,
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text, Sources: mentionedSources(text, records)}, nil
}

// complete tries providers in order and reports which attempt answered.
func (a *Assistant) complete(ctx context.Context, req ports.CompletionRequest) (string, int, error) {
	req.MaxTokens = a.maxTokens
	req.Temperature = answerTemperature

	var errs []error
	for i, provider := range a.providers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if a.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		text, err := provider.Complete(callCtx, req)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), i, nil
		}
		if err == nil {
			err = errors.New("empty answer")
		}
		a.logger.Warn("answer provider failed", "provider", provider.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	return "", 0, fmt.Errorf("%w: %v", domain.ErrExtractionServiceUnavailable, errors.Join(errs...))
}

func askContext(records []domain.CivicRecord) string {
	blocks := make([]string, 0, len(records))
	for i, r := range records {
		metrics := make([]string, 0, len(r.KeyMetrics))
		for _, m := range r.KeyMetrics {
			line := m.Label + ": " + m.Value
			if m.ChangePercent != nil && *m.ChangePercent != 0 {
				line += fmt.Sprintf(" (%s%% change)", signed(*m.ChangePercent))
			}
			metrics = append(metrics, line)
		}
		insights := make([]string, 0, len(r.Insights))
		for _, in := range r.Insights {
			insights = append(insights, in.Title+": "+in.Description)
		}

		blocks = append(blocks, fmt.Sprintf("[Document %d]\nTitle: %s\nCategory: %s\nSource: %s\nDate: %s\nSummary: %s\nKey Metrics: %s\nInsights: %s",
			i+1, r.Title, r.Category, r.Source, recordDate(r), truncateRunes(r.Summary, summaryContextRunes),
			strings.Join(metrics, ", "), strings.Join(insights, "; ")))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func chatContext(records []domain.CivicRecord) string {
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Document: %s\nCategory: %s\nSource: %s\nSummary: %s\n", r.Title, r.Category, r.Source, r.Summary)
		if len(r.KeyMetrics) > 0 {
			sb.WriteString("Key Metrics:\n")
			for _, m := range r.KeyMetrics {
				fmt.Fprintf(&sb, "- %s: %s", m.Label, m.Value)
				if m.Trend != "" {
					fmt.Fprintf(&sb, " (%s)", m.Trend)
				}
				if m.ChangePercent != nil && *m.ChangePercent != 0 {
					fmt.Fprintf(&sb, " %s%% change", signed(*m.ChangePercent))
				}
				sb.WriteString("\n")
			}
		}
		if len(r.Insights) > 0 {
			sb.WriteString("Key Insights:\n")
			for _, in := range r.Insights {
				fmt.Fprintf(&sb, "- [%s] %s: %s\n", strings.ToUpper(string(in.Kind)), in.Title, in.Description)
			}
		}
		if len(r.PlainEnglishSummary) > 0 {
			sb.WriteString("What This Means:\n")
			for _, point := range r.PlainEnglishSummary {
				fmt.Fprintf(&sb, "- %s\n", point)
			}
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n---\n\n")
}

// mentionedSources lists up to three records whose title or category the
// answer mentions.
func mentionedSources(answer string, records []domain.CivicRecord) []string {
	lower := strings.ToLower(answer)
	sources := []string{}
	for _, r := range records {
		if len(sources) == answerSources {
			break
		}
		title := strings.ToLower(r.Title)
		category := strings.ToLower(string(r.Category))
		if (title != "" && strings.Contains(lower, title)) || (category != "" && strings.Contains(lower, category)) {
			sources = append(sources, r.Title)
		}
	}
	return sources
}

func recordDate(r domain.CivicRecord) string {
	if r.DatePublished != nil {
		return r.DatePublished.String()
	}
	return r.CreatedAt.Format(time.RFC3339)
}

func signed(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
