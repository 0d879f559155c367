package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"finanzas/internal/core"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Gemini implements Gateway with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func insightsPrompt(transactionsJSON string) string {
	return "Eres un asesor financiero personal. Analiza las transacciones de gastos del usuario " +
		"y proporciona información sobre áreas potenciales para ahorrar. Responde en español.\n\n" +
		"Transacciones:\n" + transactionsJSON + "\n"
}

func categorizePrompt(description string) string {
	var b strings.Builder
	b.WriteString("Eres un asistente que clasifica transacciones de finanzas personales.\n")
	b.WriteString("Elige la categoría más adecuada para la descripción entre las siguientes:\n")
	b.WriteString("Gastos: " + strings.Join(core.Categories(core.Expense), ", ") + "\n")
	b.WriteString("Ingresos: " + strings.Join(core.Categories(core.Income), ", ") + "\n\n")
	b.WriteString("Descripción: " + description + "\n\n")
	b.WriteString("Responde SOLO con JSON válido, sin Markdown, con la forma {\"category\": \"<categoría>\"}.\n")
	b.WriteString("La categoría debe escribirse exactamente como aparece en la lista.\n")
	return b.String()
}

func (g *Gemini) SpendingInsights(ctx context.Context, transactionsJSON string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(insightsPrompt(transactionsJSON)), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) Categorize(ctx context.Context, description string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(categorizePrompt(description)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return parseCategory(resp.Text())
}

type categoryResponse struct {
	Category string `json:"category"`
}

// parseCategory extracts the label from the model output, tolerating code
// fences and text around the JSON object.
func parseCategory(raw string) (string, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return "", ErrEmptyResponse
	}
	var out categoryResponse
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return "", fmt.Errorf("unmarshal category: %w (raw response: %q)", err, raw)
	}
	if strings.TrimSpace(out.Category) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Category), nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
