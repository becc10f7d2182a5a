package screening

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// labelSeparator joins distinct strategy labels of a merged match
const labelSeparator = "、"

// Match is one screened instrument in canonical shape. Numeric fields are
// nil when unknown.
type Match struct {
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name"`
	Date             string   `json:"date"`
	Close            *float64 `json:"close"`
	ChangePct        *float64 `json:"change_pct"`
	VolumeRatio      *float64 `json:"volume_ratio"`
	TurbulencePct    *float64 `json:"turbulence_pct"`
	MinPriceM        *float64 `json:"min_price_m"`
	PETTM            *float64 `json:"pe_ttm"`
	MarketCapBillion *float64 `json:"market_cap_billion"`
	NetProfit        *float64 `json:"net_profit"`
	JValue           *float64 `json:"j_value,omitempty"`
	JLast            *float64 `json:"j_last,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	ScoreReasons     []string `json:"score_reasons,omitempty"`
}

// Field aliases, highest priority first
var (
	symbolKeys       = []string{"symbol", "code", "ts_code", "stock_code", "代码", "股票代码"}
	nameKeys         = []string{"name", "stock_name", "名称", "股票名称"}
	dateKeys         = []string{"date", "trade_date", "日期", "交易日期"}
	closeKeys        = []string{"close", "close_price", "price", "收盘", "收盘价", "最新价"}
	changePctKeys    = []string{"change_pct", "pct_chg", "changePercent", "涨跌幅"}
	volumeRatioKeys  = []string{"volume_ratio", "vol_ratio", "量比"}
	turbulenceKeys   = []string{"turbulence_pct", "amplitude", "振幅"}
	minPriceKeys     = []string{"min_price_m", "reference_price", "参考价"}
	peKeys           = []string{"pe_ttm", "pe", "市盈率", "市盈率TTM"}
	marketCapKeys    = []string{"market_cap_billion", "market_cap", "总市值", "市值"}
	netProfitKeys    = []string{"net_profit", "净利润"}
	jValueKeys       = []string{"j_value", "j", "J值"}
	jLastKeys        = []string{"j_last", "前一日J值"}
	strategyKeys     = []string{"strategy", "strategy_name", "策略"}
	scoreKeys        = []string{"score", "评分"}
	scoreReasonsKeys = []string{"score_reasons", "reasons", "评分依据"}
)

// Labeler maps a strategy id to its display label
type Labeler func(id string) string

// Normalize maps one heterogeneous upstream record to a Match. label turns
// raw strategy ids into display labels; fallbackStrategy is used when the
// record carries none.
func Normalize(record map[string]interface{}, label Labeler, fallbackStrategy string) Match {
	m := Match{
		Symbol:           lookupString(record, symbolKeys),
		Name:             lookupString(record, nameKeys),
		Date:             lookupString(record, dateKeys),
		Close:            lookupNumber(record, closeKeys),
		ChangePct:        lookupNumber(record, changePctKeys),
		VolumeRatio:      lookupNumber(record, volumeRatioKeys),
		TurbulencePct:    lookupNumber(record, turbulenceKeys),
		MinPriceM:        lookupNumber(record, minPriceKeys),
		PETTM:            lookupNumber(record, peKeys),
		MarketCapBillion: lookupNumber(record, marketCapKeys),
		NetProfit:        lookupNumber(record, netProfitKeys),
		JValue:           lookupNumber(record, jValueKeys),
		JLast:            lookupNumber(record, jLastKeys),
		Score:            lookupNumber(record, scoreKeys),
		ScoreReasons:     lookupStrings(record, scoreReasonsKeys),
	}

	strategy := lookupString(record, strategyKeys)
	if strategy == "" {
		strategy = fallbackStrategy
	}
	if strategy != "" && label != nil {
		strategy = label(strategy)
	}
	m.Strategy = strategy

	return m
}

// lookup returns the first alias that is present and not null
func lookup(record map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := record[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(record map[string]interface{}, keys []string) string {
	v, ok := lookup(record, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	case bool, map[string]interface{}, []interface{}:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func lookupNumber(record map[string]interface{}, keys []string) *float64 {
	v, ok := lookup(record, keys)
	if !ok {
		return nil
	}
	return ParseNumber(v)
}

func lookupStrings(record map[string]interface{}, keys []string) []string {
	v, ok := lookup(record, keys)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

// ParseNumber coerces a JSON value to a number. Numeric values and
// numeric-looking strings (thousands separators stripped) are accepted;
// anything else, including NaN and infinities, yields nil.
func ParseNumber(v interface{}) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return finite(float64(t))
	case int64:
		return finite(float64(t))
	case int32:
		return finite(float64(t))
	case json.Number:
		return parseDecimal(t.String())
	case string:
		return parseDecimal(t)
	default:
		return nil
	}
}

func parseDecimal(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return finite(f)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Merge collapses matches sharing a symbol, keeping first-seen order. For
// each field the first non-null, non-zero value wins; distinct strategy
// labels are joined with 、. Matches without a symbol are kept as-is.
func Merge(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	index := make(map[string]int, len(matches))

	for _, m := range matches {
		if m.Symbol == "" {
			out = append(out, m)
			continue
		}
		i, seen := index[m.Symbol]
		if !seen {
			index[m.Symbol] = len(out)
			out = append(out, m)
			continue
		}
		out[i] = mergeInto(out[i], m)
	}

	return out
}

func mergeInto(dst, src Match) Match {
	dst.Name = firstString(dst.Name, src.Name)
	dst.Date = firstString(dst.Date, src.Date)
	dst.Close = firstNumber(dst.Close, src.Close)
	dst.ChangePct = firstNumber(dst.ChangePct, src.ChangePct)
	dst.VolumeRatio = firstNumber(dst.VolumeRatio, src.VolumeRatio)
	dst.TurbulencePct = firstNumber(dst.TurbulencePct, src.TurbulencePct)
	dst.MinPriceM = firstNumber(dst.MinPriceM, src.MinPriceM)
	dst.PETTM = firstNumber(dst.PETTM, src.PETTM)
	dst.MarketCapBillion = firstNumber(dst.MarketCapBillion, src.MarketCapBillion)
	dst.NetProfit = firstNumber(dst.NetProfit, src.NetProfit)
	dst.JValue = firstNumber(dst.JValue, src.JValue)
	dst.JLast = firstNumber(dst.JLast, src.JLast)
	dst.Score = firstNumber(dst.Score, src.Score)
	if len(dst.ScoreReasons) == 0 {
		dst.ScoreReasons = src.ScoreReasons
	}
	dst.Strategy = joinLabels(dst.Strategy, src.Strategy)
	return dst
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNumber(a, b *float64) *float64 {
	if a != nil && *a != 0 {
		return a
	}
	if b != nil && *b != 0 {
		return b
	}
	if a != nil {
		return a
	}
	return b
}

func joinLabels(existing, add string) string {
	if add == "" {
		return existing
	}
	if existing == "" {
		return add
	}
	labels := strings.Split(existing, labelSeparator)
	for _, l := range strings.Split(add, labelSeparator) {
		if l == "" || contains(labels, l) {
			continue
		}
		labels = append(labels, l)
	}
	return strings.Join(labels, labelSeparator)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// NormalizeSymbols flattens symbol input into a comma-joined list. Commas
// (ASCII or full-width), whitespace and newlines all separate symbols.
func NormalizeSymbols(raw string) string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == ';' || unicode.IsSpace(r)
	})
	return strings.Join(fields, ",")
}

// SymbolList accepts either a string or a list of strings/numbers in JSON
// and holds the normalized comma-joined form.
type SymbolList string

// UnmarshalJSON implements json.Unmarshaler
func (s *SymbolList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case nil:
		*s = ""
	case string:
		*s = SymbolList(NormalizeSymbols(t))
	case json.Number:
		*s = SymbolList(t.String())
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			switch v := item.(type) {
			case string:
				parts = append(parts, v)
			case json.Number:
				parts = append(parts, v.String())
			}
		}
		*s = SymbolList(NormalizeSymbols(strings.Join(parts, ",")))
	default:
		return fmt.Errorf("symbols must be a string or a list")
	}
	return nil
}
