package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// RESTBroker reads the broker gateway's JSON endpoints. Missing or failing
// endpoints degrade to (nil, nil) so one dead feed does not take down the
// whole prompt.
type RESTBroker struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewRESTBroker(baseURL, apiKey string, logger *zap.Logger) *RESTBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTBroker{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

func (b *RESTBroker) Quote(ctx context.Context, stockCode string) (*Quote, error) {
	var out Quote
	ok, err := b.get(ctx, "/v1/quote", url.Values{"code": {stockCode}}, &out)
	if err != nil || !ok {
		return nil, err
	}
	out.StockCode = stockCode
	if out.PrevClose > 0 {
		out.ChangeRate = (out.Close - out.PrevClose) / out.PrevClose * 100
	}
	return &out, nil
}

func (b *RESTBroker) Indices(ctx context.Context) ([]IndexQuote, error) {
	var out []IndexQuote
	ok, err := b.get(ctx, "/v1/indices", nil, &out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

func (b *RESTBroker) Orderbook(ctx context.Context, stockCode string) (*Orderbook, error) {
	var out Orderbook
	ok, err := b.get(ctx, "/v1/orderbook", url.Values{"code": {stockCode}}, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

func (b *RESTBroker) InvestorFlows(ctx context.Context, stockCode string, days int) (*InvestorFlows, error) {
	var out InvestorFlows
	ok, err := b.get(ctx, "/v1/investor-flows", url.Values{
		"code": {stockCode},
		"days": {strconv.Itoa(days)},
	}, &out)
	if err != nil || !ok {
		return nil, err
	}
	out.Days = days
	return &out, nil
}

func (b *RESTBroker) Fundamentals(ctx context.Context, stockCode string) (*Fundamentals, error) {
	var out Fundamentals
	ok, err := b.get(ctx, "/v1/fundamentals", url.Values{"code": {stockCode}}, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

func (b *RESTBroker) Disclosures(ctx context.Context, stockCode string, since time.Time, limit int) ([]Disclosure, error) {
	var out []Disclosure
	ok, err := b.get(ctx, "/v1/disclosures", url.Values{
		"code":  {stockCode},
		"since": {since.Format(time.RFC3339)},
		"limit": {strconv.Itoa(limit)},
	}, &out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

// get returns (false, nil) on 404 and logs transport failures instead of
// propagating them.
func (b *RESTBroker) get(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	if b == nil || b.BaseURL == "" {
		return false, nil
	}
	u := b.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		b.Logger.Warn("broker request failed", zap.String("path", path), zap.Error(err))
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		b.Logger.Warn("broker returned error",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("market: decode %s: %w", path, err)
	}
	return true, nil
}
