// Package gate implements the optional LLM admission filter: one
// yes/no call per expression against an OpenRouter-style chat endpoint,
// bounded by a process-wide call budget.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Verdict is the normalized classifier answer.
type Verdict int

const (
	// Unknown covers ambiguous, empty, error and over-budget responses;
	// callers fall back to local scoring.
	Unknown Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Config controls the classifier client.
type Config struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	// MaxChars truncates the readable body included in the prompt.
	MaxChars int
	// MaxCalls bounds classifier calls per run; beyond it the gate is
	// disabled for the remainder of the run.
	MaxCalls int64
}

// Request carries the land and expression context sent to the classifier.
type Request struct {
	LandName        string
	LandDescription string
	LandLang        string
	Lemmas          []string

	URL         string
	Title       string
	Description string
	Readable    string
}

// Gate issues classification calls. Safe for concurrent use; the call
// budget is a single atomic counter shared by all workers.
type Gate struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger

	calls        atomic.Int64
	budgetNotice sync.Once
}

// New builds a Gate. A nil return means the gate is disabled and the
// caller should score locally without consulting it.
func New(cfg Config, log *zap.Logger) *Gate {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 6000
	}
	if cfg.MaxCalls == 0 {
		cfg.MaxCalls = 500
	}
	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Check asks the classifier whether the expression belongs to the land.
// Every failure mode maps to Unknown; the gate never blocks a crawl.
func (g *Gate) Check(ctx context.Context, req Request) Verdict {
	if g == nil {
		return Unknown
	}
	if g.calls.Add(1) > g.cfg.MaxCalls {
		g.budgetNotice.Do(func() {
			g.log.Warn("relevance gate call budget exhausted, disabled for the rest of the run",
				zap.Int64("max_calls", g.cfg.MaxCalls))
		})
		return Unknown
	}

	payload, err := json.Marshal(chatRequest{
		Model:    g.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: g.prompt(req)}},
	})
	if err != nil {
		return Unknown
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Unknown
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.log.Debug("gate call failed", zap.String("url", req.URL), zap.Error(err))
		return Unknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		g.log.Debug("gate call rejected", zap.String("url", req.URL), zap.Int("status", resp.StatusCode))
		return Unknown
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil || len(decoded.Choices) == 0 {
		return Unknown
	}
	return normalize(decoded.Choices[0].Message.Content)
}

func (g *Gate) prompt(req Request) string {
	readable := req.Readable
	if len(readable) > g.cfg.MaxChars {
		readable = readable[:g.cfg.MaxChars]
	}
	return fmt.Sprintf(
		"Projet de veille : %s\nDescription : %s\nLangue : %s\nTermes du dictionnaire : %s\n\n"+
			"Page :\nURL : %s\nTitre : %s\nDescription : %s\nContenu :\n%s\n\n"+
			"Cette page est-elle pertinente pour le projet ? Réponds uniquement par oui ou non.",
		req.LandName, req.LandDescription, req.LandLang, strings.Join(req.Lemmas, ", "),
		req.URL, req.Title, req.Description, readable)
}

// normalize reads only the first word of the answer.
func normalize(answer string) Verdict {
	fields := strings.Fields(strings.ToLower(answer))
	if len(fields) == 0 {
		return Unknown
	}
	switch strings.Trim(fields[0], ".,!:;\"'") {
	case "oui", "yes":
		return Yes
	case "non", "no":
		return No
	default:
		return Unknown
	}
}
