package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// maxBodyBytes bounds the in-memory request body read (spec.md §4.7 step 3).
const maxBodyBytes = 2 << 20 // 2MiB

// IdentityHeader is the header creatures send their signed API key on
// (spec.md §4.7 step 1; shared with pkg/supervisor.IdentityHeader).
const IdentityHeader = "X-Creature-Key"

const unknownIdentity = "unknown"

// CostRecorder records usage against an identity. Satisfied by
// *cost.Tracker.
type CostRecorder interface {
	Record(identity string, inputTokens, outputTokens int64, model string)
}

// BudgetChecker resolves whether identity is currently over its effective
// budget, returning the action to take.
type BudgetChecker func(identity string) (exceeded bool, action models.BudgetAction)

// Hooks are the proxy's observer callbacks (spec.md §4.7 admission
// pipeline steps 2, 4, 6).
type Hooks struct {
	OnModelSeen      func(identity, model string)
	OnBudgetExceeded func(identity string)
}

// Proxy is the translating LLM gateway.
type Proxy struct {
	sourceUpstream string // base URL, e.g. Anthropic-compatible
	targetUpstream string // base URL, e.g. OpenAI-responses-compatible
	sourceAPIKey   string
	targetAPIKey   string

	client  *http.Client
	cost    CostRecorder
	budget  BudgetChecker
	hooks   Hooks
	jwtSecret []byte
	log     zerolog.Logger
}

// Config configures a Proxy.
type Config struct {
	SourceUpstreamURL string
	TargetUpstreamURL string
	SourceAPIKey      string
	TargetAPIKey      string
	JWTSecret         []byte
}

// New creates a Proxy.
func New(cfg Config, cost CostRecorder, budget BudgetChecker, hooks Hooks, log zerolog.Logger) *Proxy {
	return &Proxy{
		sourceUpstream: cfg.SourceUpstreamURL,
		targetUpstream: cfg.TargetUpstreamURL,
		sourceAPIKey:   cfg.SourceAPIKey,
		targetAPIKey:   cfg.TargetAPIKey,
		client:         &http.Client{},
		cost:           cost,
		budget:         budget,
		hooks:          hooks,
		jwtSecret:      cfg.JWTSecret,
		log:            log.With().Str("component", "llmproxy").Logger(),
	}
}

// ExtractIdentity parses the shared "<prefix>:<name>" convention out of a
// raw header value, verifying it as a JWT first if a secret is configured
// (spec.md §4.7 step 1; SPEC_FULL.md §5 "JWT ... C7 verifies it on the
// admission path instead of trusting the raw header value").
func (p *Proxy) ExtractIdentity(headerValue string) string {
	if headerValue == "" {
		return unknownIdentity
	}

	if len(p.jwtSecret) > 0 {
		if name, ok := p.verifyJWT(headerValue); ok {
			return name
		}
	}

	if idx := strings.IndexByte(headerValue, ':'); idx >= 0 {
		return headerValue[idx+1:]
	}
	return unknownIdentity
}

func (p *Proxy) verifyJWT(raw string) (string, bool) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return p.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", false
	}
	if idx := strings.IndexByte(sub, ':'); idx >= 0 {
		return sub[idx+1:], true
	}
	return sub, true
}

// Result is the outcome of HandleRequest, used by the HTTP-layer adapter
// to write a response.
type Result struct {
	StatusCode int
	Body       []byte
	ContentType string
}

// ErrBudgetExceeded marks a 429 admission rejection.
var ErrBudgetExceeded = fmt.Errorf("budget exceeded")

// HandleRequest runs the full admission pipeline (spec.md §4.7) and
// returns the response to write back verbatim (source route) or as
// translated JSON (target route). ctx should carry the inbound request's
// deadline, not a default one (SPEC_FULL.md §5).
func (p *Proxy) HandleRequest(ctx context.Context, identity string, body io.Reader) (Result, error) {
	if exceeded, action := p.checkBudget(identity); exceeded {
		switch action {
		case models.BudgetActionSleep:
			if p.hooks.OnBudgetExceeded != nil {
				p.hooks.OnBudgetExceeded(identity)
			}
			return p.budgetExceededResult(identity), nil
		case models.BudgetActionWarn:
			p.log.Warn().Str("identity", identity).Msg("over budget, action=warn")
		}
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return Result{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"failed to read body"}`)}, nil
	}

	var req SourceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return Result{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"invalid request body"}`)}, nil
	}

	if p.hooks.OnModelSeen != nil {
		p.hooks.OnModelSeen(identity, req.Model)
	}

	route := InferRoute(req.Model)
	var result Result
	var usage Usage
	if route == RouteTarget {
		result, usage, err = p.doTargetRoute(ctx, req)
	} else {
		result, usage, err = p.doSourceRoute(ctx, raw, req.Model)
	}
	if err != nil {
		return Result{StatusCode: http.StatusBadGateway, Body: []byte(`{"error":"upstream request failed"}`)}, nil
	}

	if result.StatusCode >= 200 && result.StatusCode < 300 {
		p.cost.Record(identity, usage.InputTokens, usage.OutputTokens, req.Model)
		if exceeded, _ := p.checkBudget(identity); exceeded && p.hooks.OnBudgetExceeded != nil {
			p.hooks.OnBudgetExceeded(identity)
		}
	}

	return result, nil
}

func (p *Proxy) checkBudget(identity string) (bool, models.BudgetAction) {
	if p.budget == nil {
		return false, models.BudgetActionOff
	}
	return p.budget(identity)
}

// budgetExceededResult matches spec.md §8 Scenario C: a 429 whose body
// carries `"type":"rate_limit_error"`.
func (p *Proxy) budgetExceededResult(identity string) Result {
	body, _ := json.Marshal(map[string]interface{}{
		"type":    "rate_limit_error",
		"message": fmt.Sprintf("budget exceeded for %s", identity),
	})
	return Result{StatusCode: http.StatusTooManyRequests, Body: body, ContentType: "application/json"}
}

func (p *Proxy) doSourceRoute(ctx context.Context, raw []byte, model string) (Result, Usage, error) {
	if p.sourceUpstream == "" {
		return Result{}, Usage{}, fmt.Errorf("no source upstream configured")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sourceUpstream, bytes.NewReader(raw))
	if err != nil {
		return Result{}, Usage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.sourceAPIKey != "" {
		httpReq.Header.Set("x-api-key", p.sourceAPIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, Usage{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, Usage{}, err
	}

	var parsed SourceResponse
	_ = json.Unmarshal(respBody, &parsed)

	return Result{StatusCode: resp.StatusCode, Body: respBody, ContentType: "application/json"}, parsed.Usage, nil
}

func (p *Proxy) doTargetRoute(ctx context.Context, req SourceRequest) (Result, Usage, error) {
	if p.targetUpstream == "" {
		return Result{}, Usage{}, fmt.Errorf("no target upstream configured")
	}
	targetReq := ToTargetRequest(req)
	payload, err := json.Marshal(targetReq)
	if err != nil {
		return Result{}, Usage{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.targetUpstream, bytes.NewReader(payload))
	if err != nil {
		return Result{}, Usage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.targetAPIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.targetAPIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, Usage{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, Usage{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{StatusCode: resp.StatusCode, Body: respBody, ContentType: "application/json"}, Usage{}, nil
	}

	var targetResp TargetResponse
	if err := json.Unmarshal(respBody, &targetResp); err != nil {
		return Result{StatusCode: http.StatusBadGateway, Body: []byte(`{"error":"unparsable upstream body"}`), ContentType: "application/json"}, Usage{}, nil
	}

	sourceResp := FromTargetResponse(targetResp)
	translated, err := json.Marshal(sourceResp)
	if err != nil {
		return Result{}, Usage{}, err
	}
	return Result{StatusCode: http.StatusOK, Body: translated, ContentType: "application/json"}, sourceResp.Usage, nil
}
