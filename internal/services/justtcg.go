package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/metrics"
)

const (
	justTCGBaseURL        = "https://api.justtcg.com/v1"
	justTCGDefaultTimeout = 10 * time.Second

	defaultMaxAttempts    = 3
	defaultInitialBackoff = time.Second
)

// JustTCGOptions configures the shared upstream client.
type JustTCGOptions struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	HTTPClient     *http.Client
	// Sleep waits between retries. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// JustTCG holds what every user's client shares: the HTTP client, the API
// key, a circuit breaker over transport failures and per-user pacing.
type JustTCG struct {
	client         *http.Client
	apiKey         string
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	breaker        *gobreaker.CircuitBreaker[*rawResponse]

	limitersMu sync.Mutex
	limiters   map[uint]*rate.Limiter
}

// NewJustTCG creates the shared JustTCG upstream.
func NewJustTCG(opts JustTCGOptions) *JustTCG {
	if opts.BaseURL == "" {
		opts.BaseURL = justTCGBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = justTCGDefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	log := logging.With("justtcg")
	breaker := gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "justtcg-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transport failures count against the upstream.
		IsSuccessful: func(err error) bool {
			var netErr *NetworkError
			return err == nil || !errors.As(err, &netErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})

	return &JustTCG{
		client:         opts.HTTPClient,
		apiKey:         opts.APIKey,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		sleep:          opts.Sleep,
		breaker:        breaker,
		limiters:       make(map[uint]*rate.Limiter),
	}
}

// ForUser returns a client that paces, accounts and reports usage against
// the ledger's user.
func (j *JustTCG) ForUser(ledger *QuotaLedger) *JustTCGClient {
	return &JustTCGClient{
		api:     j,
		ledger:  ledger,
		limiter: j.limiterFor(ledger),
		log:     logging.With("justtcg").With().Uint("user_id", ledger.UserID()).Logger(),
	}
}

func (j *JustTCG) limiterFor(ledger *QuotaLedger) *rate.Limiter {
	j.limitersMu.Lock()
	defer j.limitersMu.Unlock()

	l, ok := j.limiters[ledger.UserID()]
	if !ok {
		limit, burst := perMinute(ledger.RequestsPerMinute())
		l = rate.NewLimiter(limit, burst)
		j.limiters[ledger.UserID()] = l
	}
	return l
}

func perMinute(rpm int) (rate.Limit, int) {
	if rpm <= 0 {
		return rate.Inf, 1
	}
	return rate.Limit(float64(rpm) / 60.0), rpm
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// JustTCGClient is one user's view of the upstream API.
type JustTCGClient struct {
	api     *JustTCG
	ledger  *QuotaLedger
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Ledger returns the quota ledger this client reports usage to.
func (c *JustTCGClient) Ledger() *QuotaLedger {
	return c.ledger
}

// CardQuery selects a card listing. Exactly one of Set, Game or CardID is
// expected.
type CardQuery struct {
	Set    string
	Game   string
	CardID string
	Limit  int
	Offset int
}

// ListGames returns every game JustTCG prices.
func (c *JustTCGClient) ListGames(ctx context.Context) ([]GameRecord, error) {
	data, err := c.call(ctx, "list_games", "", request{method: http.MethodGet, path: "/games"})
	if err != nil {
		return nil, err
	}
	return decodeList[GameRecord](data)
}

// ListSets returns the sets of a game.
func (c *JustTCGClient) ListSets(ctx context.Context, gameExternalID string) ([]SetRecord, error) {
	q := url.Values{}
	q.Set("game", gameExternalID)
	data, err := c.call(ctx, "list_sets", gameExternalID, request{method: http.MethodGet, path: "/sets", query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[SetRecord](data)
}

// ListCards returns one page of cards.
func (c *JustTCGClient) ListCards(ctx context.Context, cq CardQuery) ([]CardRecord, error) {
	q := url.Values{}
	entity := ""
	switch {
	case cq.CardID != "":
		q.Set("cardId", cq.CardID)
		entity = cq.CardID
	case cq.Set != "":
		q.Set("set", cq.Set)
		entity = cq.Set
	case cq.Game != "":
		q.Set("game", cq.Game)
		entity = cq.Game
	}
	if cq.Limit > 0 {
		q.Set("limit", strconv.Itoa(cq.Limit))
	}
	if cq.Offset > 0 {
		q.Set("offset", strconv.Itoa(cq.Offset))
	}

	data, err := c.call(ctx, "list_cards", entity, request{method: http.MethodGet, path: "/cards", query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[CardRecord](data)
}

// GetCardsBatch looks up many cards in one call.
func (c *JustTCGClient) GetCardsBatch(ctx context.Context, externalIDs []string) ([]CardRecord, error) {
	items := make([]map[string]string, 0, len(externalIDs))
	for _, id := range externalIDs {
		items = append(items, map[string]string{"cardId": id})
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	entity := fmt.Sprintf("%d cards", len(externalIDs))
	data, err := c.call(ctx, "get_cards_batch", entity, request{method: http.MethodPost, path: "/cards", body: body})
	if err != nil {
		return nil, err
	}
	return decodeList[CardRecord](data)
}

type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
}

type rawResponse struct {
	status int
	body   []byte
}

// envelope is the JustTCG response body.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata *Usage          `json:"_metadata"`
	Usage    *Usage          `json:"usage"`
	Error    json.RawMessage `json:"error"`
	Code     json.RawMessage `json:"code"`
}

func (e *envelope) usage() *Usage {
	if e.Metadata != nil {
		return e.Metadata
	}
	return e.Usage
}

// call runs one operation with network retries and records its outcome.
func (c *JustTCGClient) call(ctx context.Context, op, entity string, req request) (json.RawMessage, error) {
	start := time.Now()
	data, err := c.withRetry(ctx, func() (json.RawMessage, error) {
		return c.once(ctx, req)
	})
	metrics.JustTCGRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.JustTCGRequestsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()

	if err != nil {
		event := c.log.Error()
		if IsRateLimited(err) {
			event = c.log.Warn()
		}
		event.Err(err).Str("operation", op).Str("entity", entity).Msg("JustTCG call failed")
	}
	return data, err
}

// withRetry retries network failures with doubling backoff. Nothing is
// waited after the final attempt; every other error is returned at once.
func (c *JustTCGClient) withRetry(ctx context.Context, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.api.initialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Hour
	policy.MaxElapsedTime = 0

	retries := uint64(0)
	if c.api.maxAttempts > 1 {
		retries = uint64(c.api.maxAttempts - 1)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)

	attempt := 0
	operation := func() (json.RawMessage, error) {
		attempt++
		data, err := fn()
		if err == nil {
			return data, nil
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.JustTCGRetriesTotal.Inc()
		c.log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying JustTCG call")
	}
	return backoff.RetryNotifyWithTimerAndData(operation, b, notify, &sleepTimer{ctx: ctx, sleep: c.api.sleep})
}

// sleepTimer is a backoff.Timer driven by the client's sleep function.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}

// once performs a single HTTP exchange and classifies its outcome. Any usage
// block is applied to the ledger before returning, success or not.
func (c *JustTCGClient) once(ctx context.Context, req request) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.api.breaker.Execute(func() (*rawResponse, error) {
		return c.api.send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &NetworkError{Cause: err}
		}
		return nil, err
	}

	if len(bytes.TrimSpace(raw.body)) == 0 {
		if raw.status == http.StatusTooManyRequests {
			return nil, &RateLimitError{ResetTime: c.ledger.ResetTime()}
		}
		if raw.status >= 300 {
			return nil, &APIError{Status: raw.status, Message: http.StatusText(raw.status)}
		}
		return nil, &ValidationError{Reason: "response is empty"}
	}

	var env envelope
	if err := json.Unmarshal(raw.body, &env); err != nil {
		switch {
		case raw.status == http.StatusTooManyRequests:
			return nil, &RateLimitError{ResetTime: c.ledger.ResetTime()}
		case raw.status >= 300:
			return nil, &APIError{Status: raw.status, Message: http.StatusText(raw.status), Raw: raw.body}
		default:
			return nil, &ValidationError{Reason: "body is not valid JSON"}
		}
	}

	usage := env.usage()
	if usage != nil {
		if err := c.ledger.ApplyUsageReport(ctx, usage); err != nil {
			c.log.Error().Err(err).Msg("failed to apply usage report")
		}
		limit, burst := perMinute(c.ledger.RequestsPerMinute())
		c.limiter.SetLimit(limit)
		c.limiter.SetBurst(burst)
	}

	code, message := parseErrorPayload(env.Error, env.Code)
	if raw.status == http.StatusTooManyRequests || code == "429" || code == "RATE_LIMIT_EXCEEDED" {
		if message == "" {
			message = "Rate limit exceeded. Please try again later."
		}
		return nil, &RateLimitError{ResetTime: c.ledger.ResetTime(), Usage: usage, Message: message}
	}
	if hasPayload(env.Error) {
		if message == "" {
			message = "API error occurred"
		}
		return nil, &APIError{Status: raw.status, Code: code, Message: message, Raw: raw.body}
	}
	if raw.status >= 300 {
		return nil, &APIError{Status: raw.status, Code: code, Message: http.StatusText(raw.status), Raw: raw.body}
	}

	if !hasPayload(env.Data) {
		return nil, &ValidationError{Reason: "missing data and error fields"}
	}
	switch bytes.TrimSpace(env.Data)[0] {
	case '[', '{':
	default:
		return nil, &ValidationError{Reason: "data is not in expected format"}
	}
	return env.Data, nil
}

// send performs the HTTP exchange. Only transport failures are errors here.
func (j *JustTCG) send(ctx context.Context, req request) (*rawResponse, error) {
	u := j.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if j.apiKey != "" {
		httpReq.Header.Set("x-api-key", j.apiKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Cause: fmt.Errorf("failed to read response: %w", err)}
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

func hasPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseErrorPayload reads the error block, which is either a message string
// or an object with code and message. The top-level code is a fallback.
func parseErrorPayload(errRaw, codeRaw json.RawMessage) (code, message string) {
	if hasPayload(errRaw) {
		var msg string
		if err := json.Unmarshal(errRaw, &msg); err == nil {
			message = msg
		} else {
			var obj struct {
				Code    json.RawMessage `json:"code"`
				Message string          `json:"message"`
			}
			if err := json.Unmarshal(errRaw, &obj); err == nil {
				code = scalarString(obj.Code)
				message = obj.Message
			}
		}
	}
	if code == "" {
		code = scalarString(codeRaw)
	}
	return code, message
}

// scalarString renders a JSON string or number without quotes.
func scalarString(raw json.RawMessage) string {
	if !hasPayload(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func decodeList[T any](data json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, &ValidationError{Reason: "data object could not be decoded: " + err.Error()}
		}
		return []T{one}, nil
	}
	var list []T
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, &ValidationError{Reason: "data list could not be decoded: " + err.Error()}
	}
	return list, nil
}

func outcomeLabel(err error) string {
	var (
		rl  *RateLimitError
		api *APIError
		net *NetworkError
		inv *ValidationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &api):
		return "api_error"
	case errors.As(err, &net):
		return "network_error"
	case errors.As(err, &inv):
		return "invalid"
	default:
		return "error"
	}
}
