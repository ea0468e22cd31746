package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"

	// textSnippetLimit bounds how much of a text file goes into the prompt.
	textSnippetLimit = 500
)

var ErrMissingAPIKey = errors.New("oracle api key is not configured")

type GeminiConfig struct {
	// BaseURL overrides the Gemini API endpoint. Empty uses the SDK default.
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute float64
	Burst             int
}

// GeminiClient asks Gemini whether a file matches a bounty and parses the
// JSON verdict out of the model's text reply. Requests are throttled locally
// because the upstream quota is shared by every sampler.
type GeminiClient struct {
	cfg     GeminiConfig
	client  *genai.Client
	initErr error
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewGeminiClient(cfg GeminiConfig, log *zap.Logger) *GeminiClient {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	perSecond := cfg.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &GeminiClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     log,
	}
	if cfg.APIKey == "" {
		c.initErr = ErrMissingAPIKey
		return c
	}

	c.client, c.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if c.initErr != nil {
		log.Error("failed to create gemini client", zap.Error(c.initErr))
	}
	return c
}

// BuildPrompt renders the instruction sent alongside the file.
func BuildPrompt(file File, bounty Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bounty Context: %q\n", bounty.Title+" - "+bounty.Description)
	fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(bounty.Tags, ", "))
	if file.IsImage() {
		b.WriteString("Task: Does this image strictly match the bounty requirements?\n")
	} else {
		b.WriteString("Task: Does this text strictly match the bounty requirements?\n")
		fmt.Fprintf(&b, "Content Snippet: %s...\n", snippet(string(file.Data), textSnippetLimit))
	}
	b.WriteString("Return ONLY a JSON object with this structure (no markdown):\n")
	b.WriteString(`{ "isValid": boolean, "score": number, "feedback": "string" }`)
	return b.String()
}

func snippet(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func (c *GeminiClient) Evaluate(ctx context.Context, file File, bounty Context) (Verdict, error) {
	if c.initErr != nil {
		return Verdict{}, c.initErr
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Verdict{}, fmt.Errorf("oracle rate limit wait: %w", err)
	}

	parts := make([]*genai.Part, 0, 2)
	if file.IsImage() {
		parts = append(parts, genai.NewPartFromBytes(file.Data, file.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(BuildPrompt(file, bounty)))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to call oracle: %w", err)
	}

	verdict, err := ParseVerdict(resp.Text())
	if err != nil {
		return Verdict{}, err
	}
	c.log.Debug("oracle verdict",
		zap.String("file", file.Name),
		zap.Bool("valid", verdict.IsValid),
		zap.Int("score", verdict.Score),
		zap.Duration("took", time.Since(start)),
	)
	return verdict, nil
}
