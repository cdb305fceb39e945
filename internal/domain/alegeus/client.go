// Package alegeus talks to the Alegeus benefits administration API and keeps
// wallet requests reconciled with it.
package alegeus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// tokenRefreshMargin is how long before expiry a cached token is replaced.
const tokenRefreshMargin = 5 * time.Minute

// APIError is a non-2xx Alegeus response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alegeus: status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL      string
	TPAID        string
	ClientID     string
	ClientSecret string
}

// API is the subset of Alegeus endpoints the platform uses.
type API interface {
	PostEmployeeDemographic(ctx context.Context, d Demographic) (string, error)
	PostAddPlan(ctx context.Context, employeeID, planID string, amountCents int64) error
	GetEmployeeTransactions(ctx context.Context, employeeID string) ([]Transaction, error)
	PostClaim(ctx context.Context, employeeID string, c Claim) (string, error)
	GetClaimStatus(ctx context.Context, employeeID, claimKey string) (ClaimStatus, error)
	PostIssueCard(ctx context.Context, employeeID string) (Card, error)
	PutCardStatus(ctx context.Context, employeeID, proxyNumber, status string) error
}

type Demographic struct {
	EmployeeID  string `json:"EmployeeId"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Email       string `json:"Email"`
	DateOfBirth string `json:"BirthDate,omitempty"`
}

type Claim struct {
	PlanID           string `json:"PlanId"`
	Amount           string `json:"ApprovedClaimAmount"`
	ServiceStartDate string `json:"ServiceStartDate"`
	ServiceEndDate   string `json:"ServiceEndDate"`
	Provider         string `json:"ServiceProvider"`
	Description      string `json:"Description"`
	TrackingNumber   string `json:"TrackingNumber"`
}

type Transaction struct {
	TransactionKey   string
	PlanID           string
	SettlementDate   string
	ServiceStartDate string
	AmountCents      int64
	Status           string
	StatusCode       int
	Type             string
	Description      string
}

type ClaimStatus struct {
	ClaimKey                 string
	Status                   string
	ReimbursementAmountCents int64
}

type Card struct {
	ProxyNumber string
	Last4       string
	Status      string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client is an OAuth2 client-credentials HTTP client.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	return c
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("alegeus token: %w", err)
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("alegeus token: response has no access_token")
	}
	c.token = token
	c.expires = c.now().Add(time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second)
	return c.token, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 1024 {
			body = body[:1024]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *Client) employeePath(employeeID string, rest string) string {
	return fmt.Sprintf("/Services/Employee/%s/%s%s", url.PathEscape(c.cfg.TPAID), url.PathEscape(employeeID), rest)
}

func (c *Client) PostEmployeeDemographic(ctx context.Context, d Demographic) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/Services/Employee/"+url.PathEscape(c.cfg.TPAID)+"/Demographic", d)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "EmployeeId").String()
	if id == "" {
		id = d.EmployeeID
	}
	return id, nil
}

func (c *Client) PostAddPlan(ctx context.Context, employeeID, planID string, amountCents int64) error {
	_, err := c.do(ctx, http.MethodPost, c.employeePath(employeeID, "/Plan"), map[string]any{
		"PlanId":         planID,
		"AnnualElection": CentsToDollars(amountCents),
	})
	return err
}

func (c *Client) GetEmployeeTransactions(ctx context.Context, employeeID string) ([]Transaction, error) {
	body, err := c.do(ctx, http.MethodGet, c.employeePath(employeeID, "/Transactions"), nil)
	if err != nil {
		return nil, err
	}
	var out []Transaction
	var parseErr error
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		amount, err := DollarsToCents(v.Get("Amount").Raw)
		if err != nil {
			parseErr = fmt.Errorf("transaction %s: %w", v.Get("TransactionKey").String(), err)
			return false
		}
		out = append(out, Transaction{
			TransactionKey:   v.Get("TransactionKey").String(),
			PlanID:           v.Get("PlanId").String(),
			SettlementDate:   v.Get("SettlementDate").String(),
			ServiceStartDate: v.Get("ServiceStartDate").String(),
			AmountCents:      amount,
			Status:           v.Get("Status").String(),
			StatusCode:       int(v.Get("StatusCode").Int()),
			Type:             v.Get("Type").String(),
			Description:      v.Get("Description").String(),
		})
		return true
	})
	return out, parseErr
}

func (c *Client) PostClaim(ctx context.Context, employeeID string, claim Claim) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.employeePath(employeeID, "/Claims"), claim)
	if err != nil {
		return "", err
	}
	key := gjson.GetBytes(body, "ClaimKey").String()
	if key == "" {
		return "", fmt.Errorf("alegeus claim: response has no ClaimKey")
	}
	return key, nil
}

func (c *Client) GetClaimStatus(ctx context.Context, employeeID, claimKey string) (ClaimStatus, error) {
	body, err := c.do(ctx, http.MethodGet, c.employeePath(employeeID, "/Claims/"+url.PathEscape(claimKey)), nil)
	if err != nil {
		return ClaimStatus{}, err
	}
	st := ClaimStatus{ClaimKey: claimKey, Status: gjson.GetBytes(body, "Status").String()}
	if raw := gjson.GetBytes(body, "ReimbursementAmount"); raw.Exists() {
		if st.ReimbursementAmountCents, err = DollarsToCents(raw.Raw); err != nil {
			return ClaimStatus{}, fmt.Errorf("claim %s: %w", claimKey, err)
		}
	}
	return st, nil
}

func (c *Client) PostIssueCard(ctx context.Context, employeeID string) (Card, error) {
	body, err := c.do(ctx, http.MethodPost, c.employeePath(employeeID, "/Card"), map[string]any{"IssueCard": true})
	if err != nil {
		return Card{}, err
	}
	r := gjson.ParseBytes(body)
	return Card{
		ProxyNumber: r.Get("CardProxyNumber").String(),
		Last4:       r.Get("CardLast4").String(),
		Status:      r.Get("Status").String(),
	}, nil
}

func (c *Client) PutCardStatus(ctx context.Context, employeeID, proxyNumber, status string) error {
	_, err := c.do(ctx, http.MethodPut, c.employeePath(employeeID, "/Card/"+url.PathEscape(proxyNumber)),
		map[string]string{"Status": status})
	return err
}
