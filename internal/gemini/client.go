// Package gemini wraps the external generative-language API that produces the
// natural-language explanations and chat replies.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rumenyi/agroassist/pkg/models"
)

// Sentinel errors for explanation service failures. All three mean the job's
// explanation step failed hard; the pipeline maps them to job failure.
var (
	ErrUnreachable = errors.New("gemini unreachable")
	ErrTimeout     = errors.New("gemini request timeout")
	ErrBadResponse = errors.New("gemini returned invalid response")
)

// EmptyFallback is returned in place of an empty generation. An empty
// explanation is a soft failure: the prediction still has value, so the job
// completes with this text instead of failing.
const EmptyFallback = "Désolé, je n'ai pas pu générer de réponse pour le moment. Veuillez réessayer."

// systemInstruction is the assistant persona sent with every request.
const systemInstruction = "Vous êtes Rumenyi, un assistant agricole numérique dédié aux petits " +
	"exploitants agricoles. Vous fournissez des conseils agronomiques personnalisés, précis et " +
	"opportuns : gestion des maladies des plantes, diagnostic des carences du sol, recommandation " +
	"des cultures et des engrais. Vous communiquez de manière claire, bienveillante et accessible, " +
	"avec des conseils pratiques et adaptés au contexte local."

// Client is the interface for generating text. Implementations perform a
// single attempt with a bounded timeout; retry policy belongs to the caller.
type Client interface {
	// Generate produces text for a standalone prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateChat produces the next assistant reply for a conversation.
	// History must end with the latest user message.
	GenerateChat(ctx context.Context, history []models.Message) (string, error)
}

// HTTPClient implements Client against the Gemini REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPClient creates a Gemini client. timeout bounds each request.
func NewHTTPClient(baseURL, apiKey, model string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []content{{Role: "user", Parts: []part{{Text: prompt}}}}
	return c.generate(ctx, contents)
}

func (c *HTTPClient) GenerateChat(ctx context.Context, history []models.Message) (string, error) {
	contents := make([]content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == models.MessageRoleAssistant {
			role = "model"
		} else if msg.Role == models.MessageRoleSystem {
			continue
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: msg.Content}}})
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("%w: empty history", ErrBadResponse)
	}
	return c.generate(ctx, contents)
}

func (c *HTTPClient) generate(ctx context.Context, contents []content) (string, error) {
	body := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents:          contents,
		GenerationConfig: &generationConfig{
			Temperature: 0.7,
			TopP:        0.8,
			TopK:        40,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decoding body: %v", ErrBadResponse, err)
	}

	// Concatenate all candidate parts into one final string.
	var sb strings.Builder
	for _, cand := range genResp.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}

	text := sb.String()
	if text == "" {
		return EmptyFallback, nil
	}
	return text, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- Gemini wire types ---

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	TopK        int     `json:"topK,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
