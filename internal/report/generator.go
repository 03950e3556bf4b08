package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/analysis"
	"newsradar/internal/llm"
	"newsradar/internal/market"
	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// Recommendation action vocabulary. Matching for A/B comparison scans the
// action text for these words.
var actionWords = []string{"매수", "매도", "관망", "보유"}

type Scenario struct {
	Narrative    string  `json:"narrative"`
	TargetPrice  float64 `json:"target_price"`
	SupportPrice float64 `json:"support_price"`
}

type Recommendation struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type PriceTargets struct {
	Base          float64 `json:"base"`
	ShortTarget   float64 `json:"short_target"`
	ShortSupport  float64 `json:"short_support"`
	MediumTarget  float64 `json:"medium_target"`
	MediumSupport float64 `json:"medium_support"`
	LongTarget    float64 `json:"long_target"`
	LongSupport   float64 `json:"long_support"`
}

// Report is one model's structured investment report.
type Report struct {
	OverallSummary     string         `json:"overall_summary"`
	ShortTerm          Scenario       `json:"short_term"`
	MediumTerm         Scenario       `json:"medium_term"`
	LongTerm           Scenario       `json:"long_term"`
	RiskFactors        []string       `json:"risk_factors"`
	OpportunityFactors []string       `json:"opportunity_factors"`
	Recommendation     Recommendation `json:"recommendation"`
	PriceTargets       PriceTargets   `json:"price_targets"`

	ModelName   string    `json:"model_name"`
	GeneratedAt time.Time `json:"generated_at"`
	ParseError  string    `json:"parse_error,omitempty"`
}

// Comparison is the A/B block stored under custom_data.
type Comparison struct {
	RecommendationMatch      bool     `json:"recommendation_match"`
	OverlappingRisks         []string `json:"overlapping_risks"`
	OverlappingOpportunities []string `json:"overlapping_opportunities"`
}

// DualReport pairs both A/B model reports with their comparison.
type DualReport struct {
	ModelA     Report     `json:"model_a"`
	ModelB     Report     `json:"model_b"`
	Comparison Comparison `json:"comparison"`
}

// Generator produces reports for one configured model.
type Generator struct {
	Chat   llm.ChatClient
	Broker market.Broker
	Repo   repository.Repository
	Logger *zap.Logger

	Model          models.Model
	MaxPredictions int
	// LenientParse extracts JSON from markdown-wrapped completions; B-side
	// models typically need it.
	LenientParse bool
}

// Generate builds the report from at most MaxPredictions recent
// predictions. currentPrice overrides the broker quote when > 0.
func (g *Generator) Generate(ctx context.Context, stockCode string, predictions []models.Prediction, currentPrice float64) (*Report, error) {
	maxPreds := g.MaxPredictions
	if maxPreds <= 0 {
		maxPreds = 20
	}
	if len(predictions) > maxPreds {
		predictions = predictions[:maxPreds]
	}

	var quote *market.Quote
	if g.Broker != nil {
		q, err := g.Broker.Quote(ctx, stockCode)
		if err != nil {
			g.log().Warn("broker quote failed", zap.String("stock", stockCode), zap.Error(err))
		} else {
			quote = q
		}
	}
	if currentPrice <= 0 {
		if quote != nil {
			currentPrice = quote.Close
		} else if g.Repo != nil {
			if latest, err := g.Repo.LatestPrice(ctx, stockCode); err == nil && latest != nil {
				currentPrice = latest.Close.InexactFloat64()
			}
		}
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("report: no current price for %s", stockCode)
	}

	prompt := g.buildPrompt(ctx, stockCode, predictions, quote, currentPrice)
	raw, err := g.Chat.Chat(ctx, g.Model.ModelIdentifier, []llm.Message{
		{Role: "system", Content: reportSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.3, MaxTokens: 2000, JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("report: model %s: %w", g.Model.Name, err)
	}

	rep, err := ParseReport(raw, g.LenientParse)
	if err != nil {
		return nil, fmt.Errorf("report: model %s: %w", g.Model.Name, err)
	}
	finishReport(rep, g.Model.ModelIdentifier, currentPrice)
	return rep, nil
}

// ParseReport decodes a completion into a Report. With lenient set, the
// payload may be wrapped in markdown fences or prose.
func ParseReport(raw string, lenient bool) (*Report, error) {
	payload := json.RawMessage(raw)
	if lenient {
		extracted, err := llm.ExtractJSONObject(raw)
		if err != nil {
			return nil, err
		}
		payload = extracted
	}
	var rep Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if strings.TrimSpace(rep.OverallSummary) == "" {
		return nil, fmt.Errorf("report missing overall_summary")
	}
	return &rep, nil
}

// finishReport applies the invariants the prompt alone cannot guarantee:
// base price equals the provided close and factor lists stay within three
// entries.
func finishReport(rep *Report, modelName string, currentPrice float64) {
	rep.PriceTargets.Base = currentPrice
	if len(rep.RiskFactors) > 3 {
		rep.RiskFactors = rep.RiskFactors[:3]
	}
	if len(rep.OpportunityFactors) > 3 {
		rep.OpportunityFactors = rep.OpportunityFactors[:3]
	}
	rep.ModelName = modelName
	rep.GeneratedAt = time.Now().UTC()
}

// DualGenerate runs both A/B generators on identical input. A B-side parse
// failure substitutes an empty report and never fails the A side.
func DualGenerate(ctx context.Context, a, b *Generator, stockCode string, predictions []models.Prediction, currentPrice float64) (*DualReport, error) {
	repA, errA := a.Generate(ctx, stockCode, predictions, currentPrice)
	if errA != nil {
		return nil, errA
	}
	out := &DualReport{ModelA: *repA}

	repB, errB := b.Generate(ctx, stockCode, predictions, currentPrice)
	if errB != nil {
		b.log().Warn("B-side report failed, substituting empty report",
			zap.String("stock", stockCode), zap.Error(errB))
		out.ModelB = Report{ModelName: b.Model.ModelIdentifier, ParseError: errB.Error(), GeneratedAt: time.Now().UTC()}
	} else {
		out.ModelB = *repB
	}
	out.Comparison = CompareReports(out.ModelA, out.ModelB)
	return out, nil
}

// CompareReports builds the A/B comparison block.
func CompareReports(a, b Report) Comparison {
	return Comparison{
		RecommendationMatch:      actionOf(a.Recommendation.Action) != "" && actionOf(a.Recommendation.Action) == actionOf(b.Recommendation.Action),
		OverlappingRisks:         overlap(a.RiskFactors, b.RiskFactors),
		OverlappingOpportunities: overlap(a.OpportunityFactors, b.OpportunityFactors),
	}
}

func actionOf(action string) string {
	for _, word := range actionWords {
		if strings.Contains(action, word) {
			return word
		}
	}
	return ""
}

func overlap(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[strings.TrimSpace(v)] = true
	}
	var out []string
	for _, v := range b {
		v = strings.TrimSpace(v)
		if set[v] {
			out = append(out, v)
			set[v] = false
		}
	}
	sort.Strings(out)
	return out
}

const reportSystemPrompt = `당신은 한국 주식 시장 전문 애널리스트입니다. ` +
	`주어진 종목의 뉴스 분석 결과와 시장 데이터를 종합해 투자 리포트를 작성하고, 반드시 JSON 객체 하나만 반환하세요. ` +
	`필수 키: overall_summary, short_term, medium_term, long_term (각각 narrative/target_price/support_price), ` +
	`risk_factors (최대 3개), opportunity_factors (최대 3개), recommendation (action/reason), ` +
	`price_targets (base/short_target/short_support/medium_target/medium_support/long_target/long_support). ` +
	`recommendation.action은 매수/매도/관망/보유 중 하나를 포함해야 합니다.`

func (g *Generator) buildPrompt(ctx context.Context, stockCode string, predictions []models.Prediction, quote *market.Quote, currentPrice float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## 종목: %s (현재가 %.0f)\n\n", stockCode, currentPrice)

	agg := Aggregate(predictions)
	b.WriteString("## 예측 집계\n")
	fmt.Fprintf(&b, "표본 %d건 / 평균 감성 %+.2f / 평균 관련도 %.2f\n", agg.Total, agg.MeanSentiment, agg.MeanRelevance)
	b.WriteString("감성 분포: ")
	writeDist(&b, agg.SentimentDist)
	b.WriteString("영향도 분포: ")
	writeDist(&b, agg.ImpactDist)
	b.WriteString("\n")

	b.WriteString("## 최근 개별 분석 (최대 5건)\n")
	for _, p := range agg.Recent {
		fmt.Fprintf(&b, "- [%s] %s / %+.2f / %s\n",
			p.CreatedAt.Format("01-02 15:04"), p.SentimentDirection, p.SentimentScore, p.ImpactLevel)
	}
	b.WriteString("\n")

	b.WriteString("## 기술적 지표\n")
	if g.Repo != nil {
		if prices, err := g.Repo.ListRecentPrices(ctx, stockCode, 60); err == nil {
			if snap := analysis.ComputeIndicators(prices); snap != nil {
				writePromptIndicators(&b, snap)
			} else {
				b.WriteString("데이터 없음\n")
			}
		}
	}
	b.WriteString("\n")

	b.WriteString("## 시장 스냅샷\n")
	g.writeMarketSnapshot(ctx, &b, stockCode, quote)
	return b.String()
}

func (g *Generator) writeMarketSnapshot(ctx context.Context, b *strings.Builder, stockCode string, quote *market.Quote) {
	if g.Broker == nil {
		b.WriteString("데이터 없음\n")
		return
	}
	if quote != nil {
		fmt.Fprintf(b, "실시간 OHLC: 시가 %.0f / 고가 %.0f / 저가 %.0f / 종가 %.0f (%+.2f%%)\n",
			quote.Open, quote.High, quote.Low, quote.Close, quote.ChangeRate)
	}
	if ob, err := g.Broker.Orderbook(ctx, stockCode); err == nil && ob != nil {
		fmt.Fprintf(b, "호가 매수 압력: %.2f\n", ob.Pressure())
	}
	if flows, err := g.Broker.InvestorFlows(ctx, stockCode, 5); err == nil && flows != nil {
		fmt.Fprintf(b, "투자자 순매수(5영업일): 외국인 %d / 기관 %d / 개인 %d\n",
			flows.Foreign, flows.Institution, flows.Individual)
	}
	if f, err := g.Broker.Fundamentals(ctx, stockCode); err == nil && f != nil {
		fmt.Fprintf(b, "PER %.2f / PBR %.2f / EPS %.0f / 시가총액 %d / 섹터 %s\n",
			f.PER, f.PBR, f.EPS, f.MarketCap, f.Sector)
	}
}

func writeDist(b *strings.Builder, dist map[string]int) {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, dist[k]))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("\n")
}

func writePromptIndicators(b *strings.Builder, snap *analysis.IndicatorSnapshot) {
	if snap.MA20 != nil && snap.MA20VsClose != nil {
		fmt.Fprintf(b, "MA20 %.0f (대비 %+.2f%%)\n", *snap.MA20, *snap.MA20VsClose)
	}
	if snap.RSI14 != nil {
		fmt.Fprintf(b, "RSI(14) %.1f\n", *snap.RSI14)
	}
	if snap.MACDHist != nil {
		fmt.Fprintf(b, "MACD 히스토그램 %+.2f\n", *snap.MACDHist)
	}
	if snap.Momentum5D != nil {
		fmt.Fprintf(b, "5일 모멘텀 %+.2f%%\n", *snap.Momentum5D)
	}
}

func (g *Generator) log() *zap.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return zap.NewNop()
}
