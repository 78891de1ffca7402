package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultMembersTTL = time.Minute
	maxErrorBody      = 64 << 10
)

type Config struct {
	BaseURL string
	// Token is used when the request context carries no caller token.
	Token            string
	Timeout          time.Duration
	RateLimit        float64
	RateBurst        int
	MembersTTL       time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Client talks to the clinic REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	members    *cache.Cache
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	membersTTL := cfg.MembersTTL
	if membersTTL <= 0 {
		membersTTL = defaultMembersTTL
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:         "clinic-api",
			MaxFailures:  cfg.BreakerThreshold,
			Timeout:      cfg.BreakerTimeout,
			IsSuccessful: countsAsSuccess,
		}),
		members: cache.New(membersTTL, 2*membersTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// countsAsSuccess keeps client errors from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

type freshKey struct{}

// WithFreshMembers makes GetMembers skip the cache for calls made with ctx.
// The fetched list still refreshes the cache.
func WithFreshMembers(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

func (c *Client) tokenFor(ctx context.Context) string {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok && tok != "" {
		return tok
	}
	return c.token
}

func (c *Client) GetClinicSettings(ctx context.Context) (model.ClinicSettings, error) {
	var out model.ClinicSettings
	err := c.do(ctx, "get_clinic_settings", http.MethodGet, "/clinic/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateClinicSettings(ctx context.Context, settings model.ClinicSettings) error {
	return c.do(ctx, "update_clinic_settings", http.MethodPut, "/clinic/settings", settings, nil)
}

// GetMembers is cached per caller token unless ctx asks for a fresh list.
func (c *Client) GetMembers(ctx context.Context) ([]model.Member, error) {
	key := "members:" + c.tokenFor(ctx)
	if fresh, _ := ctx.Value(freshKey{}).(bool); !fresh {
		if cached, ok := c.members.Get(key); ok {
			return append([]model.Member(nil), cached.([]model.Member)...), nil
		}
	}

	var out []model.Member
	if err := c.do(ctx, "get_members", http.MethodGet, "/clinic/members", nil, &out); err != nil {
		return nil, err
	}
	c.members.SetDefault(key, out)
	return append([]model.Member(nil), out...), nil
}

type appointmentTypesPayload struct {
	AppointmentTypeIDs []int64 `json:"appointment_type_ids"`
}

func (c *Client) GetPractitionerAppointmentTypes(ctx context.Context, practitionerID int64) ([]int64, error) {
	var out appointmentTypesPayload
	path := fmt.Sprintf("/clinic/practitioners/%d/appointment-types", practitionerID)
	if err := c.do(ctx, "get_practitioner_appointment_types", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return model.NormalizeIDs(out.AppointmentTypeIDs), nil
}

func (c *Client) UpdatePractitionerAppointmentTypes(ctx context.Context, practitionerID int64, typeIDs []int64) error {
	path := fmt.Sprintf("/clinic/practitioners/%d/appointment-types", practitionerID)
	body := appointmentTypesPayload{AppointmentTypeIDs: model.NormalizeIDs(typeIDs)}
	return c.do(ctx, "update_practitioner_appointment_types", http.MethodPut, path, body, nil)
}

type scenarioPayload struct {
	Name         string `json:"name"`
	Amount       int64  `json:"amount"`
	RevenueShare int64  `json:"revenue_share"`
	IsDefault    bool   `json:"is_default"`
}

func newScenarioPayload(s model.BillingScenario) scenarioPayload {
	return scenarioPayload{
		Name:         s.Name,
		Amount:       s.Amount,
		RevenueShare: s.RevenueShare,
		IsDefault:    s.IsDefault,
	}
}

type scenarioList struct {
	BillingScenarios []model.BillingScenario `json:"billing_scenarios"`
}

func scenariosPath(key model.ScenarioKey) string {
	return fmt.Sprintf("/clinic/service-items/%d/practitioners/%d/billing-scenarios", key.ServiceItemID, key.PractitionerID)
}

func (c *Client) ListBillingScenarios(ctx context.Context, key model.ScenarioKey) ([]model.BillingScenario, error) {
	var out scenarioList
	if err := c.do(ctx, "list_billing_scenarios", http.MethodGet, scenariosPath(key), nil, &out); err != nil {
		return nil, err
	}
	return out.BillingScenarios, nil
}

func (c *Client) CreateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) (model.BillingScenarioRef, error) {
	var out model.BillingScenarioRef
	if err := c.do(ctx, "create_billing_scenario", http.MethodPost, scenariosPath(key), newScenarioPayload(s), &out); err != nil {
		return model.BillingScenarioRef{}, err
	}
	if out.ID <= 0 {
		return model.BillingScenarioRef{}, fmt.Errorf("clinicapi: create billing scenario: invalid id %d in response", out.ID)
	}
	return out, nil
}

func (c *Client) UpdateBillingScenario(ctx context.Context, key model.ScenarioKey, s model.BillingScenario) error {
	path := scenariosPath(key) + "/" + strconv.FormatInt(s.ID, 10)
	return c.do(ctx, "update_billing_scenario", http.MethodPut, path, newScenarioPayload(s), nil)
}

func (c *Client) DeleteBillingScenario(ctx context.Context, key model.ScenarioKey, scenarioID int64) error {
	path := scenariosPath(key) + "/" + strconv.FormatInt(scenarioID, 10)
	return c.do(ctx, "delete_billing_scenario", http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("clinicapi: missing base url")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("clinicapi: %s: %w", operation, err)
	}

	start := time.Now()
	status := "error"
	err := c.breaker.Execute(func() error {
		code, err := c.roundTrip(ctx, method, path, in, out)
		if code > 0 {
			status = strconv.Itoa(code)
		}
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		status = "breaker_open"
	}
	c.metrics.ObserveRemoteCall(operation, status, time.Since(start))

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}
		return fmt.Errorf("clinicapi: %s: %w", operation, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokenFor(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, newAPIError(resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}
