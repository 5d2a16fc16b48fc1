package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragqa/internal/domain"
)

// Asker is the TUI-facing subset of the RAG service.
type Asker interface {
	AskQuestion(ctx context.Context, query string) (string, error)
}

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the on-screen conversation.
type Turn struct {
	Role Role
	Text string
}

type answerMsg struct {
	query  string
	answer string
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service  Asker
	ctx      context.Context
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	turns    []Turn
	header   string
	status   string
	thinking bool
	ready    bool
}

// New creates a chat model. Each question is bounded by timeout when it is positive.
func New(ctx context.Context, service Asker, header string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		ctx:      ctx,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		header:   header,
		status:   "Ready. Enter: ask  Ctrl+R: reset  Ctrl+C: quit",
	}
}

// Turns returns the conversation so far.
func (m Model) Turns() []Turn { return m.turns }

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.thinking = false
		if msg.err != nil {
			m.status = "Error: " + describeError(msg.err)
			return m, nil
		}
		m.turns = append(m.turns, Turn{Role: RoleAssistant, Text: msg.answer})
		m.status = fmt.Sprintf("Answered %q", msg.query)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.turns = nil
			m.status = "Conversation cleared."
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			m.input.Reset()
			m.turns = append(m.turns, Turn{Role: RoleUser, Text: q})
			m.thinking = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	parent, svc, timeout := m.ctx, m.service, m.timeout
	return func() tea.Msg {
		ctx := parent
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parent, timeout)
			defer cancel()
		}
		answer, err := svc.AskQuestion(ctx, q)
		return answerMsg{query: q, answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Baseball Q&A")
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	if strings.HasPrefix(m.status, "Error") {
		statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
	}
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + sub + "\n" + transcript + "\n" + input + "\n" + statusStyle.Render(m.status)
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	var lastQuery string
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch t.Role {
		case RoleUser:
			lastQuery = t.Text
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(t.Text)
		case RoleAssistant:
			b.WriteString(assistantStyle.Render("Bot: "))
			b.WriteString(highlightBestSentence(t.Text, lastQuery))
		}
	}
	return b.String()
}

// describeError turns pipeline errors into a message for the status line.
func describeError(err error) string {
	var se *domain.ServiceError
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return "please type a question"
	case errors.Is(err, domain.ErrTimeout):
		return "the answer took too long, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "the answer took too long, please try again"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "the knowledge index is not available"
	case errors.As(err, &se):
		return fmt.Sprintf("the %s service is unavailable, please try again later", se.Service)
	default:
		return err.Error()
	}
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the answer sentence sharing most words with the question.
// The text is otherwise returned unchanged, including line breaks and an unterminated tail.
func highlightBestSentence(text, query string) string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore == 0 {
		return text
	}
	best := sentences[bestIdx]
	core := strings.TrimSpace(best)
	at := strings.Index(best, core)
	sentences[bestIdx] = best[:at] + highlightStyle.Render(core) + best[at+len(core):]
	return strings.Join(sentences, "")
}

// splitSentences cuts text after each sentence terminator. The pieces concatenate back to text.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		out = append(out, text[last:loc[1]])
		last = loc[1]
	}
	if rest := text[last:]; strings.TrimSpace(rest) != "" {
		out = append(out, rest)
	} else if len(out) > 0 {
		out[len(out)-1] += rest
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
