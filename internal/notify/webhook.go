package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsradar/internal/analysis"
	"newsradar/internal/models"
)

// WebhookNotifier posts prediction alerts to an external webhook.
// A nil or empty-URL notifier silently drops messages so the pipeline
// can run without a delivery channel configured.
type WebhookNotifier struct {
	URL   string
	Token string

	HTTP *http.Client
}

type alertPayload struct {
	NewsID      uint64         `json:"news_id"`
	StockCode   string         `json:"stock_code"`
	Title       string         `json:"title"`
	Source      string         `json:"source"`
	PublishedAt time.Time      `json:"published_at"`
	Priority    string         `json:"priority"`
	Predictions map[string]any `json:"predictions,omitempty"`
	Comparison  map[string]any `json:"comparison,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, article *models.NewsArticle, pair *analysis.ABPredictions, priority string) error {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		return nil
	}

	payload := alertPayload{
		NewsID:      article.ID,
		Title:       article.Title,
		Source:      article.Source,
		PublishedAt: article.PublishedAt,
		Priority:    priority,
		SentAt:      time.Now().UTC(),
	}
	if article.StockCode != nil {
		payload.StockCode = *article.StockCode
	}
	if pair != nil {
		payload.Predictions = map[string]any{
			"model_a": predictionSummary(pair.ModelA),
			"model_b": predictionSummary(pair.ModelB),
		}
		payload.Comparison = map[string]any{
			"direction_agreement": pair.Comparison.DirectionAgreement,
			"confidence_delta":    pair.Comparison.ConfidenceDelta,
			"stronger_side":       pair.Comparison.StrongerSide,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(n.URL, "/"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(n.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("notify webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func predictionSummary(p *models.Prediction) map[string]any {
	if p == nil {
		return nil
	}
	out := map[string]any{
		"model_id":        p.ModelID,
		"direction":       p.SentimentDirection,
		"sentiment_score": p.SentimentScore,
		"impact_level":    p.ImpactLevel,
		"relevance_score": p.RelevanceScore,
		"urgency":         p.UrgencyLevel,
		"reasoning":       p.Reasoning,
	}
	if p.Confidence != nil {
		out["confidence"] = *p.Confidence
	}
	return out
}

func (n *WebhookNotifier) httpClient() *http.Client {
	if n.HTTP != nil {
		return n.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
