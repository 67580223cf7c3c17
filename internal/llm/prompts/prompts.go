package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var (
	candidateAnswerRegex    = regexp.MustCompile(`(?i)</?\s*candidate-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Operation names one fixed prompt template.
type Operation string

const (
	OpQuestions     Operation = "questions"
	OpAnalysis      Operation = "analysis"
	OpComprehensive Operation = "comprehensive"
	OpJobDetails    Operation = "job_details"
	OpFollowUp      Operation = "followup"
)

// Prompt is a rendered template plus the generation settings it was declared with.
type Prompt struct {
	Text        string
	Temperature float32
	MaxTokens   int
	JSON        bool
}

type templateFile struct {
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	JSON        bool    `yaml:"json"`
	Template    string  `yaml:"template"`
}

type entry struct {
	settings templateFile
	tmpl     *template.Template
}

// Library holds the parsed prompt templates.
type Library struct {
	entries map[Operation]entry
}

var funcs = template.FuncMap{
	"sanitize": SanitizeAnswer,
	"truncate": Truncate,
	"inc":      func(i int) int { return i + 1 },
	"score":    func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) },
}

// Load parses every embedded template. All five operations must be present.
func Load() (*Library, error) {
	dir, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates directory: %w", err)
	}
	lib := &Library{entries: make(map[Operation]entry)}
	for _, e := range dir {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := templateFS.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		var tf templateFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("parse template file %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".yaml")
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(tf.Template)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", e.Name(), err)
		}
		lib.entries[Operation(name)] = entry{settings: tf, tmpl: tmpl}
	}
	for _, op := range []Operation{OpQuestions, OpAnalysis, OpComprehensive, OpJobDetails, OpFollowUp} {
		if _, ok := lib.entries[op]; !ok {
			return nil, fmt.Errorf("missing prompt template %q", op)
		}
	}
	return lib, nil
}

// Render executes the template for op with data.
func (l *Library) Render(op Operation, data any) (Prompt, error) {
	e, ok := l.entries[op]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt %q", op)
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %q: %w", op, err)
	}
	return Prompt{
		Text:        buf.String(),
		Temperature: e.settings.Temperature,
		MaxTokens:   e.settings.MaxTokens,
		JSON:        e.settings.JSON,
	}, nil
}

// QuestionsData feeds the question generation prompt.
type QuestionsData struct {
	Role           string
	JobDescription string
	Difficulty     string
}

// AnalysisData feeds the single-answer analysis prompt.
type AnalysisData struct {
	Question        string
	Answer          string
	JobDescription  string
	PreviousAnswers []string
}

// QuestionScore is one line of the per-question summary in the comprehensive prompt.
type QuestionScore struct {
	Question string
	Score    float64
}

// ComprehensiveData feeds the session feedback prompt.
type ComprehensiveData struct {
	Role           string
	JobDescription string
	Questions      []string
	Answers        []string
	Analyses       []QuestionScore
}

// JobDetailsData feeds the job description extraction prompt.
type JobDetailsData struct {
	JobDescription string
}

// FollowUpData feeds the follow-up question prompt.
type FollowUpData struct {
	Question string
	Answer   string
}

// SanitizeAnswer strips tags a candidate could use to break out of the answer
// block and caps the answer at 10000 runes.
func SanitizeAnswer(answer string) string {
	answer = candidateAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > 10000 {
		runes := []rune(answer)
		answer = string(runes[:10000]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
