package analysis

import (
	"fmt"
	"strings"

	"newsradar/internal/models"
)

const predictionSystemPrompt = `당신은 한국 주식 시장 전문 애널리스트입니다. ` +
	`주어진 뉴스가 해당 종목에 미칠 영향을 분석하고, 반드시 JSON 객체 하나만 반환하세요. ` +
	`필수 키: sentiment_direction (positive|negative|neutral), sentiment_score (-1.0~1.0), ` +
	`impact_level (low|medium|high|critical), relevance_score (0.0~1.0), ` +
	`urgency_level (routine|notable|urgent|breaking), reasoning, impact_analysis, pattern_analysis.`

// BuildPredictionPrompt assembles the user prompt. Section order is part of
// the model contract and must not be reshuffled.
func BuildPredictionPrompt(news *models.NewsArticle, pctx PromptContext, similar []SimilarHit) string {
	var b strings.Builder

	// 1. Current news
	b.WriteString("## 분석 대상 뉴스\n")
	fmt.Fprintf(&b, "제목: %s\n", news.Title)
	if pctx.Stock != nil {
		fmt.Fprintf(&b, "종목: %s (%s)\n", pctx.Stock.Name, pctx.Stock.Code)
	} else if news.StockCode != nil {
		fmt.Fprintf(&b, "종목코드: %s\n", *news.StockCode)
	}
	fmt.Fprintf(&b, "본문: %s\n\n", truncateRunes(news.Content, 1500))

	// 2. Current price snapshot
	b.WriteString("## 현재 주가\n")
	if q := pctx.Quote; q != nil {
		fmt.Fprintf(&b, "종가 %.0f / 시가 %.0f / 고가 %.0f / 저가 %.0f / 전일 대비 %+.2f%%\n\n",
			q.Close, q.Open, q.High, q.Low, q.ChangeRate)
	} else {
		b.WriteString("데이터 없음\n\n")
	}

	// 3. Market index snapshot
	b.WriteString("## 시장 지수\n")
	if len(pctx.Indices) == 0 {
		b.WriteString("데이터 없음\n")
	}
	for _, idx := range pctx.Indices {
		fmt.Fprintf(&b, "%s: %.2f (%+.2f%%)\n", idx.Name, idx.Close, idx.ChangeRate)
	}
	b.WriteString("\n")

	// 4. Recent disclosures
	b.WriteString("## 최근 공시 (최대 5건, 7일 이내)\n")
	if len(pctx.Disclosures) == 0 {
		b.WriteString("없음\n")
	}
	for i, d := range pctx.Disclosures {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", d.FiledAt.Format("01-02"), d.Title)
	}
	b.WriteString("\n")

	// 5. Similar-news pattern statistics
	b.WriteString("## 유사 뉴스 패턴 통계\n")
	stats := PatternStats(similar)
	if len(stats) == 0 {
		b.WriteString("데이터 없음\n")
	}
	for _, horizon := range Horizons {
		s, ok := stats[horizon]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: 평균 %+.2f%% / 최대 %+.2f%% / 최소 %+.2f%% (표본 %d건)\n",
			horizon, s.Mean, s.Max, s.Min, s.Count)
	}
	b.WriteString("\n")

	// 6. Per-hit summaries with realized outcomes
	b.WriteString("## 유사 과거 뉴스\n")
	if len(similar) == 0 {
		b.WriteString("없음\n")
	}
	for _, hit := range similar {
		fmt.Fprintf(&b, "- (유사도 %.2f) %s", hit.Similarity, hit.Title)
		if !hit.PublishedAt.IsZero() {
			fmt.Fprintf(&b, " [%s]", hit.PublishedAt.Format("2006-01-02"))
		}
		outcomes := make([]string, 0, len(Horizons))
		for _, horizon := range Horizons {
			if v := hit.Changes[horizon]; v != nil {
				outcomes = append(outcomes, fmt.Sprintf("%s %+.2f%%", horizon, *v))
			}
		}
		if len(outcomes) > 0 {
			fmt.Fprintf(&b, " → %s", strings.Join(outcomes, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// 7. Technical indicators
	b.WriteString("## 기술적 지표\n")
	writeIndicators(&b, pctx.Indicators)
	return b.String()
}

func writeIndicators(b *strings.Builder, snap *IndicatorSnapshot) {
	if snap == nil {
		b.WriteString("데이터 없음\n")
		return
	}
	writeMA := func(label string, ma, vs *float64) {
		if ma == nil {
			return
		}
		if vs != nil {
			fmt.Fprintf(b, "%s: %.0f (현재가 대비 %+.2f%%)\n", label, *ma, *vs)
		} else {
			fmt.Fprintf(b, "%s: %.0f\n", label, *ma)
		}
	}
	writeMA("MA5", snap.MA5, snap.MA5VsClose)
	writeMA("MA20", snap.MA20, snap.MA20VsClose)
	writeMA("MA60", snap.MA60, snap.MA60VsClose)
	if snap.VolumeRatio != nil {
		fmt.Fprintf(b, "거래량 배율(20일): %.2f\n", *snap.VolumeRatio)
	}
	if snap.RSI14 != nil {
		fmt.Fprintf(b, "RSI(14): %.1f\n", *snap.RSI14)
	}
	if snap.BollingerUp != nil && snap.BollingerMid != nil && snap.BollingerLow != nil {
		fmt.Fprintf(b, "볼린저밴드: 상단 %.0f / 중단 %.0f / 하단 %.0f", *snap.BollingerUp, *snap.BollingerMid, *snap.BollingerLow)
		if snap.PercentB != nil {
			fmt.Fprintf(b, " (%%B %.2f)", *snap.PercentB)
		}
		b.WriteString("\n")
	}
	if snap.MACD != nil {
		fmt.Fprintf(b, "MACD: %.2f / 시그널 %.2f / 히스토그램 %.2f\n", *snap.MACD, *snap.MACDSignal, *snap.MACDHist)
	}
	writeMomentum := func(label string, v *float64) {
		if v != nil {
			fmt.Fprintf(b, "모멘텀 %s: %+.2f%%\n", label, *v)
		}
	}
	writeMomentum("1일", snap.Momentum1D)
	writeMomentum("5일", snap.Momentum5D)
	writeMomentum("20일", snap.Momentum20D)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
