package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultTimeout  = 120 * time.Second
	defaultSessions = 2
)

// Config configures the command-backed recognizer. Command is split on
// whitespace; the language list and the image path are appended per call.
// Languages are engine configuration, not a per-call parameter; the engine
// loads all configured dictionaries at once.
type Config struct {
	Command   string
	Languages []string
	Timeout   time.Duration
	Sessions  int
}

// CommandRecognizer shells out to an external OCR engine that prints a JSON
// document with per-line texts and scores on stdout.
type CommandRecognizer struct {
	command   []string
	languages []string
	timeout   time.Duration
	sessions  chan struct{}
}

// NewCommandRecognizer validates the configuration and sizes the session
// pool. At least two languages must be configured.
func NewCommandRecognizer(cfg Config) (*CommandRecognizer, error) {
	command := strings.Fields(cfg.Command)
	if len(command) == 0 {
		return nil, fmt.Errorf("ocr command required")
	}
	languages := make([]string, 0, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			languages = append(languages, lang)
		}
	}
	if len(languages) == 0 {
		languages = []string{"en", "ru"}
	}
	if len(languages) < 2 {
		return nil, fmt.Errorf("ocr requires at least two languages, got %v", languages)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sessions := cfg.Sessions
	if sessions <= 0 {
		sessions = defaultSessions
	}
	return &CommandRecognizer{
		command:   command,
		languages: languages,
		timeout:   timeout,
		sessions:  make(chan struct{}, sessions),
	}, nil
}

// Recognize runs the engine against one image. It fails fast when the path
// does not exist and releases its engine session on every return path.
func (r *CommandRecognizer) Recognize(ctx context.Context, path string, progress Progress) (Result, error) {
	select {
	case r.sessions <- struct{}{}:
	case <-ctx.Done():
		return Result{}, failure("session acquire aborted", ctx.Err())
	}
	defer func() { <-r.sessions }()

	if _, err := os.Stat(path); err != nil {
		return Result{}, failure("input file missing", err)
	}

	report := monotonic(progress)
	report(0)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append([]string{}, r.command[1:]...)
	args = append(args, "--lang", strings.Join(r.languages, ","), path)
	out, err := exec.CommandContext(ctx, r.command[0], args...).Output()
	if err != nil {
		return Result{}, failure("engine failed", err)
	}
	report(50)

	pages, err := parseEngineOutput(out)
	if err != nil {
		return Result{}, failure("engine output unreadable", err)
	}

	var (
		texts []string
		words []Word
		sum   float64
		n     int
	)
	for i, page := range pages {
		texts = append(texts, page.Text)
		words = append(words, page.Words...)
		if page.AvgScore > 0 {
			sum += page.AvgScore
			n++
		}
		report(50 + (i+1)*50/len(pages))
	}
	report(100)

	result := Result{Text: strings.Join(texts, "\n"), Words: words}
	if n > 0 {
		result.Confidence = sum / float64(n)
	}
	return result, nil
}

func monotonic(progress Progress) Progress {
	if progress == nil {
		return func(int) {}
	}
	last := -1
	return func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= last {
			return
		}
		last = percent
		progress(percent)
	}
}

type enginePage struct {
	Page     int
	Text     string
	AvgScore float64
	Words    []Word
}

// parseEngineOutput understands the engine's multi-page JSON shape and the
// single-result fallback some engine versions emit.
func parseEngineOutput(raw []byte) ([]enginePage, error) {
	var payload struct {
		OCRResults []struct {
			PageIndex    int `json:"page_index"`
			PrunedResult struct {
				RecTexts  []string  `json:"rec_texts"`
				RecScores []float64 `json:"rec_scores"`
			} `json:"prunedResult"`
		} `json:"ocrResults"`
		Result struct {
			RecTexts  []string  `json:"rec_texts"`
			RecScores []float64 `json:"rec_scores"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse engine json: %w", err)
	}

	if len(payload.OCRResults) == 0 {
		if len(payload.Result.RecTexts) == 0 {
			return nil, fmt.Errorf("engine returned no recognized lines")
		}
		return []enginePage{buildPage(1, payload.Result.RecTexts, payload.Result.RecScores)}, nil
	}

	pages := make([]enginePage, 0, len(payload.OCRResults))
	for _, res := range payload.OCRResults {
		pages = append(pages, buildPage(res.PageIndex+1, res.PrunedResult.RecTexts, res.PrunedResult.RecScores))
	}
	return pages, nil
}

func buildPage(number int, texts []string, scores []float64) enginePage {
	page := enginePage{Page: number, Text: strings.Join(texts, "\n")}
	var sum float64
	for i, text := range texts {
		word := Word{Text: text}
		if i < len(scores) {
			word.Confidence = scores[i]
			sum += scores[i]
		}
		page.Words = append(page.Words, word)
	}
	if len(texts) > 0 && len(scores) > 0 {
		page.AvgScore = sum / float64(len(texts))
	}
	return page
}
