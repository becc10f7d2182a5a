package screening

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/esclipse/SynthraCloud/internal/history"
	"github.com/esclipse/SynthraCloud/internal/jobservice"
	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/internal/strategyconfig"
	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
	"github.com/esclipse/SynthraCloud/pkg/redis"
)

// DefaultStrategy is used when a request names none
const DefaultStrategy = "s1"

// maxRetryInMs caps the upstream poll interval hint
const maxRetryInMs = int(10 * time.Minute / time.Millisecond)

// Upstream field aliases
var (
	resultKeys    = []string{"matches", "results"}
	taskIDKeys    = []string{"task_id", "taskId", "job_id", "jobId"}
	statusKeys    = []string{"status", "state"}
	retryKeys     = []string{"retry_in_ms", "retryInMs", "poll_interval_ms"}
	statusURLKeys = []string{"status_url", "statusUrl"}
	resultURLKeys = []string{"result_url", "resultUrl"}
)

// Scoring holds optional fundamental thresholds forwarded upstream
type Scoring struct {
	PEMax         *float64 `json:"pe_max,omitempty"`
	MarketCapMin  *float64 `json:"market_cap_min,omitempty"`
	RequireProfit *bool    `json:"require_profit,omitempty"`
}

// Request is a screening submission
type Request struct {
	Strategy string        `json:"strategy"`
	Symbols  SymbolList    `json:"symbols"`
	Notes    string        `json:"notes"`
	Scoring  *Scoring      `json:"scoring,omitempty"`
	Score    bool          `json:"score"`
	AIPrompt string        `json:"aiPrompt"`
	Settings *llm.Settings `json:"settings,omitempty"`
}

// upstreamRequest is the body sent to the job service
type upstreamRequest struct {
	Strategy string   `json:"strategy"`
	Symbols  string   `json:"symbols"`
	Notes    string   `json:"notes"`
	Scoring  *Scoring `json:"scoring,omitempty"`
	Score    bool     `json:"score,omitempty"`
}

// Stats counts upstream candidates and returned matches
type Stats struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
}

// Pending tells the caller to poll again with the same token
type Pending struct {
	Polling   bool   `json:"polling"`
	PollToken string `json:"pollToken"`
	Status    string `json:"status"`
	RetryInMs int    `json:"retryInMs"`
}

// Result is a completed screening
type Result struct {
	Strategy     string                 `json:"strategy,omitempty"`
	Matches      []Match                `json:"matches"`
	Stats        Stats                  `json:"stats"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
	Analysis     string                 `json:"analysis"`
	ScoreEnabled bool                   `json:"scoreEnabled"`
}

// Outcome is exactly one of Pending or Result
type Outcome struct {
	Pending *Pending
	Result  *Result
}

// Body returns the value to serialize for the caller
func (o *Outcome) Body() interface{} {
	if o.Pending != nil {
		return o.Pending
	}
	return o.Result
}

// run describes the screening being completed: which task it came from and
// the enrichment requested by the caller.
type run struct {
	taskID   string
	baseURL  string
	strategy string
	symbols  string
	prompt   string
	score    bool
	settings *llm.Settings
}

func (r run) wantsAnnotation() bool {
	return r.score || strings.TrimSpace(r.prompt) != ""
}

// cacheKey scopes a task result to the enrichment that produced it
func (r run) cacheKey() string {
	if r.taskID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strconv.FormatBool(r.score) + "\x00" + strings.TrimSpace(r.prompt)))
	return redis.TaskResultKey(r.baseURL, r.taskID) + ":" + hex.EncodeToString(sum[:8])
}

// ResultCache stores completed task results. *redis.Cache satisfies it.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Proxy submits screening jobs and resolves continuation tokens
// ⭐ SSOT: 제출 → 폴링 → 정규화 → 주석 파이프라인은 여기서만
type Proxy struct {
	jobs      *jobservice.Client
	codec     *TokenCodec
	policy    *strategyconfig.Config
	annotator *Annotator
	cfg       config.JobServiceConfig
	strict    bool

	cache    ResultCache
	cacheTTL time.Duration
	history  history.Recorder

	logger *logger.Logger
}

// NewProxy creates a proxy. Caching and history are off until configured.
func NewProxy(cfg *config.Config, jobs *jobservice.Client, codec *TokenCodec, policy *strategyconfig.Config, annotator *Annotator, log *logger.Logger) *Proxy {
	return &Proxy{
		jobs:      jobs,
		codec:     codec,
		policy:    policy,
		annotator: annotator,
		cfg:       cfg.JobService,
		strict:    cfg.Token.StrictOrigin,
		history:   history.Noop{},
		logger:    log,
	}
}

// WithCache serves completed task results from Redis. Results whose
// annotation failed are never stored.
func (p *Proxy) WithCache(cache ResultCache, ttl time.Duration) *Proxy {
	p.cache = cache
	p.cacheTTL = ttl
	return p
}

// WithHistory records completed runs
func (p *Proxy) WithHistory(rec history.Recorder) *Proxy {
	if rec != nil {
		p.history = rec
	}
	return p
}

// History returns the run recorder
func (p *Proxy) History() history.Recorder {
	return p.history
}

// Submit forwards a screening request. The upstream call is detached from
// the caller's cancellation and bounded only by the mode timeout.
func (p *Proxy) Submit(ctx context.Context, req Request) (*Outcome, error) {
	strategy := strings.TrimSpace(req.Strategy)
	if strategy == "" {
		strategy = DefaultStrategy
	}
	symbols := NormalizeSymbols(string(req.Symbols))

	timeout := p.cfg.UniverseTimeout
	if symbols != "" {
		timeout = p.cfg.SymbolTimeout
	}
	upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	log := p.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"strategy": strategy,
		"symbols":  symbols,
		"timeout":  timeout,
	})
	log.Info("Submitting screening job")

	resp, err := p.jobs.Submit(upCtx, upstreamRequest{
		Strategy: strategy,
		Symbols:  symbols,
		Notes:    req.Notes,
		Scoring:  req.Scoring,
		Score:    req.Score,
	})
	if err != nil {
		log.WithError(err).Error("Job submission failed")
		return nil, transportError(err)
	}
	if !resp.OK() {
		return nil, upstreamError(resp, "Failed to generate analysis")
	}
	if resp.Body == nil {
		return nil, invalidResponse(resp)
	}

	r := run{
		strategy: strategy,
		symbols:  symbols,
		prompt:   req.AIPrompt,
		score:    req.Score,
		settings: req.Settings,
	}
	body := resp.Body

	if records := extractRecords(body); len(records) > 0 {
		return p.complete(ctx, body, records, r), nil
	}

	if taskID := taskIDOf(body); taskID != "" {
		base := p.jobs.BaseURL()
		payload := TokenPayload{
			TaskID:    taskID,
			BaseURL:   base,
			StatusURL: jobservice.Resolve(base, stringField(body, statusURLKeys)),
			ResultURL: jobservice.Resolve(base, stringField(body, resultURLKeys)),
			RetryInMs: retryHint(body),
			Strategy:  strategy,
			AIPrompt:  req.AIPrompt,
			Score:     req.Score,
		}
		token, err := p.codec.Encode(payload)
		if err != nil {
			return nil, &Error{Status: http.StatusInternalServerError, Message: "Failed to create poll token", Err: err}
		}

		log.WithField("task_id", taskID).Info("Screening job deferred")
		return &Outcome{Pending: &Pending{
			Polling:   true,
			PollToken: token,
			Status:    statusLabel(body),
			RetryInMs: p.retryInMs(payload.RetryInMs, 0),
		}}, nil
	}

	if resultURL := stringField(body, resultURLKeys); resultURL != "" {
		fetched, err := p.jobs.Fetch(upCtx, jobservice.Resolve(p.jobs.BaseURL(), resultURL))
		if err != nil {
			return nil, transportError(err)
		}
		if !fetched.OK() {
			return nil, upstreamError(fetched, "Failed to fetch task result")
		}
		if fetched.Body == nil {
			return nil, invalidResponse(fetched)
		}
		return p.complete(ctx, fetched.Body, extractRecords(fetched.Body), r), nil
	}

	return p.complete(ctx, body, nil, r), nil
}

// Poll resolves a continuation token once. Pending outcomes echo the token
// unchanged. PollTimeout bounds the upstream fetches; annotation runs on ctx.
func (p *Proxy) Poll(ctx context.Context, token string) (*Outcome, error) {
	payload, err := p.codec.Decode(token)
	if err != nil {
		if errors.Is(err, ErrMissingToken) {
			return nil, &Error{Status: http.StatusBadRequest, Message: "Missing pollToken"}
		}
		return nil, &Error{Status: http.StatusBadRequest, Message: "Invalid or expired pollToken", Err: err}
	}
	if p.strict {
		if err := checkOrigin(payload, p.jobs.BaseURL()); err != nil {
			return nil, &Error{Status: http.StatusBadRequest, Message: "Invalid or expired pollToken", Err: err}
		}
	}

	r := run{
		taskID:   payload.TaskID,
		baseURL:  payload.BaseURL,
		strategy: payload.Strategy,
		prompt:   payload.AIPrompt,
		score:    payload.Score,
	}
	if cached := p.cached(ctx, r.cacheKey()); cached != nil {
		return &Outcome{Result: cached}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	log := p.logger.WithContext(ctx).WithField("task_id", payload.TaskID)

	statusURL := payload.StatusURL
	if statusURL == "" {
		statusURL = p.jobs.StatusURL(payload.BaseURL, payload.TaskID)
	}

	var statusBody map[string]interface{}
	if statusURL != "" {
		st, err := p.jobs.Fetch(fetchCtx, statusURL)
		if err != nil {
			log.WithError(err).Warn("Status check failed")
			return nil, transportError(err)
		}
		if !st.OK() {
			return nil, upstreamError(st, "Failed to check task status")
		}
		if st.Body == nil {
			return nil, invalidResponse(st)
		}
		statusBody = st.Body

		if records := extractRecords(statusBody); len(records) > 0 {
			return p.complete(ctx, statusBody, records, r), nil
		}

		status := stringField(statusBody, statusKeys)
		if p.policy.Poll.IsFailed(status) {
			log.WithField("status", status).Warn("Screening task failed upstream")
			return nil, &Error{
				Status:  http.StatusBadGateway,
				Message: "Screening task failed",
				Details: extractMessage(st, status),
			}
		}
		if !p.policy.Poll.IsCompleted(status) {
			return &Outcome{Pending: &Pending{
				Polling:   true,
				PollToken: token,
				Status:    statusLabel(statusBody),
				RetryInMs: p.retryInMs(retryHint(statusBody), payload.RetryInMs),
			}}, nil
		}
	}

	resultURL := payload.ResultURL
	if resultURL == "" && statusBody != nil {
		resultURL = jobservice.Resolve(payload.BaseURL, stringField(statusBody, resultURLKeys))
	}
	if resultURL == "" {
		resultURL = p.jobs.ResultURL(payload.BaseURL, payload.TaskID)
	}

	if resultURL == "" {
		if statusBody == nil {
			return nil, &Error{Status: http.StatusBadGateway, Message: "No status or result endpoint configured"}
		}
		return p.complete(ctx, statusBody, nil, r), nil
	}

	res, err := p.jobs.Fetch(fetchCtx, resultURL)
	if err != nil {
		log.WithError(err).Warn("Result fetch failed")
		return nil, transportError(err)
	}
	if !res.OK() {
		return nil, upstreamError(res, "Failed to fetch task result")
	}
	if res.Body == nil {
		return nil, invalidResponse(res)
	}

	return p.complete(ctx, res.Body, extractRecords(res.Body), r), nil
}

// complete normalizes, merges and optionally annotates a finished result
func (p *Proxy) complete(ctx context.Context, body map[string]interface{}, records []map[string]interface{}, r run) *Outcome {
	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		matches = append(matches, Normalize(rec, p.policy.Label, r.strategy))
	}
	matches = Merge(matches)

	result := &Result{
		Strategy:     r.strategy,
		Matches:      matches,
		Stats:        statsOf(body, len(records), len(matches)),
		Summary:      mapField(body, "summary"),
		ScoreEnabled: r.score || boolField(body, "scoreEnabled"),
	}

	if r.wantsAnnotation() && len(matches) > 0 {
		result.Analysis = p.annotator.Annotate(ctx, matches, r.prompt, r.settings)
	}

	if key := r.cacheKey(); key != "" && p.cache != nil && result.Analysis != AnnotationFailed {
		if err := p.cache.Set(ctx, key, result, p.cacheTTL); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to cache task result")
		}
	}

	entry := history.Run{
		Strategy:  r.strategy,
		Symbols:   r.symbols,
		TaskID:    r.taskID,
		Total:     result.Stats.Total,
		Matched:   result.Stats.Matched,
		Annotated: result.Analysis != "" && result.Analysis != AnnotationFailed,
	}
	if err := p.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to record screening run")
	}

	return &Outcome{Result: result}
}

func (p *Proxy) cached(ctx context.Context, key string) *Result {
	if p.cache == nil {
		return nil
	}
	var result Result
	hit, err := p.cache.Get(ctx, key, &result)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Task result cache lookup failed")
		return nil
	}
	if !hit {
		return nil
	}
	return &result
}

// retryInMs picks the upstream hint, then the token hint, then the default
func (p *Proxy) retryInMs(upstream, token int) int {
	if upstream > 0 {
		return upstream
	}
	if token > 0 {
		return token
	}
	return p.policy.Poll.DefaultRetryMs
}

// extractRecords returns the first non-empty results array, looking inside a
// nested "result" object as well.
func extractRecords(body map[string]interface{}) []map[string]interface{} {
	for _, key := range resultKeys {
		list, ok := body[key].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		records := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			if r, ok := item.(map[string]interface{}); ok {
				records = append(records, r)
			}
		}
		if len(records) > 0 {
			return records
		}
	}
	if nested, ok := body["result"].(map[string]interface{}); ok {
		return extractRecords(nested)
	}
	return nil
}

// taskIDOf reads the task identifier. A bare "id" only counts when the body
// carries no result list and no stats.
func taskIDOf(body map[string]interface{}) string {
	if id := stringField(body, taskIDKeys); id != "" {
		return id
	}
	for _, key := range append(resultKeys, "stats", "result") {
		if _, ok := body[key]; ok {
			return ""
		}
	}
	return stringField(body, []string{"id"})
}

func statusLabel(body map[string]interface{}) string {
	if s := stringField(body, statusKeys); s != "" {
		return s
	}
	return "pending"
}

func statsOf(body map[string]interface{}, records, matched int) Stats {
	stats := Stats{Total: records, Matched: matched}
	if s := mapField(body, "stats"); s != nil {
		if total := intField(s, []string{"total"}); total > 0 {
			stats.Total = total
		}
	} else if total := intField(body, []string{"total"}); total > 0 {
		stats.Total = total
	}
	return stats
}

func stringField(body map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := body[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// intField returns the first positive numeric field, saturating at MaxInt32
func intField(body map[string]interface{}, keys []string) int {
	for _, k := range keys {
		if n := ParseNumber(body[k]); n != nil && *n > 0 {
			return int(math.Min(*n, math.MaxInt32))
		}
	}
	return 0
}

func retryHint(body map[string]interface{}) int {
	if ms := intField(body, retryKeys); ms < maxRetryInMs {
		return ms
	}
	return maxRetryInMs
}

func mapField(body map[string]interface{}, key string) map[string]interface{} {
	m, _ := body[key].(map[string]interface{})
	return m
}

func boolField(body map[string]interface{}, key string) bool {
	b, _ := body[key].(bool)
	return b
}
