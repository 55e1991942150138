package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/retry"
)

// DefaultTimeout bounds a single JSON-RPC round trip.
const DefaultTimeout = 30 * time.Second

// DefaultPageSize is the number of records requested per search_read page.
const DefaultPageSize = 500

// AllowedMethods are the only model methods the client will call.
var AllowedMethods = map[string]bool{
	"search_read":  true,
	"read":         true,
	"search_count": true,
	"fields_get":   true,
	"search":       true,
}

// OdooConfig configures an Odoo JSON-RPC connection.
type OdooConfig struct {
	URL       string
	DB        string
	Username  string
	Password  string
	VerifySSL bool
	Timeout   time.Duration
	PageSize  int
}

// OdooClient is a read-only Odoo JSON-RPC client.
type OdooClient struct {
	cfg        OdooConfig
	httpClient *http.Client
	retry      *retry.Config
	logger     *zap.Logger

	requestID atomic.Int64
	authMu    sync.Mutex
	uid       int64
}

var _ Fetcher = (*OdooClient)(nil)

// NewOdooClient validates cfg and creates a client. Authentication happens
// lazily on the first call.
func NewOdooClient(cfg OdooConfig, logger *zap.Logger) (*OdooClient, error) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for servers with broken certificates
	}

	return &OdooClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		retry:      retry.DefaultConfig(),
		logger:     logger.Named("odoo"),
	}, nil
}

func validateConfig(cfg OdooConfig) error {
	var missing []string
	if cfg.URL == "" {
		missing = append(missing, "ODOO_URL")
	}
	if cfg.DB == "" {
		missing = append(missing, "ODOO_DB")
	}
	if cfg.Username == "" {
		missing = append(missing, "ODOO_USERNAME")
	}
	if cfg.Password == "" {
		missing = append(missing, "ODOO_PASSWORD")
	}
	if len(missing) == 0 {
		return nil
	}
	return &OdooError{
		Type:    ErrorTypeConfiguration,
		Message: "missing settings: " + strings.Join(missing, ", "),
		Diagnostics: []string{
			"Set the missing values in config.yaml or the environment.",
			"ODOO_PASSWORD may be an API key (required by Odoo 14+).",
		},
	}
}

// SearchRead pages through search_read ordered by id.
func (c *OdooClient) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int) ([]models.Record, error) {
	if domain == nil {
		domain = []any{}
	}

	var records []models.Record
	for offset := 0; ; {
		pageSize := c.cfg.PageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-len(records))
		}
		kwargs := map[string]any{"limit": pageSize, "offset": offset, "order": "id"}
		if len(fields) > 0 {
			kwargs["fields"] = fields
		}

		var page []models.Record
		if err := c.Execute(ctx, model, "search_read", []any{domain}, kwargs, &page); err != nil {
			return nil, err
		}
		records = append(records, page...)
		offset += len(page)

		if len(page) < pageSize || (limit > 0 && len(records) >= limit) {
			break
		}
	}

	c.logger.Debug("search_read complete",
		zap.String("model", model),
		zap.Int("records", len(records)))
	return records, nil
}

// Read fetches records by id in chunks of PageSize. The result is ordered by id.
func (c *OdooClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]models.Record, error) {
	if len(ids) == 0 {
		return []models.Record{}, nil
	}

	var kwargs map[string]any
	if len(fields) > 0 {
		kwargs = map[string]any{"fields": fields}
	}

	records := make([]models.Record, 0, len(ids))
	for start := 0; start < len(ids); start += c.cfg.PageSize {
		end := min(start+c.cfg.PageSize, len(ids))
		var chunk []models.Record
		if err := c.Execute(ctx, model, "read", []any{ids[start:end]}, kwargs, &chunk); err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, _ := models.RecordID(records[i])
		b, _ := models.RecordID(records[j])
		return a < b
	})
	return records, nil
}

// SearchCount counts the records of model matching domain.
func (c *OdooClient) SearchCount(ctx context.Context, model string, domain []any) (int64, error) {
	if domain == nil {
		domain = []any{}
	}
	var count int64
	if err := c.Execute(ctx, model, "search_count", []any{domain}, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Execute calls a whitelisted model method through execute_kw and decodes the
// result into out.
func (c *OdooClient) Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if !AllowedMethods[method] {
		return &OdooError{
			Type:    ErrorTypeSecurity,
			Message: fmt.Sprintf("method %q is not allowed", method),
			Diagnostics: []string{
				"The client is read-only.",
				"Allowed methods: " + strings.Join(allowedMethodNames(), ", "),
			},
		}
	}

	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	params := map[string]any{
		"service": "object",
		"method":  "execute_kw",
		"args":    []any{c.cfg.DB, uid, c.cfg.Password, model, method, args, kwargs},
	}
	result, err := c.call(ctx, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &OdooError{Type: ErrorTypeResponse, Message: fmt.Sprintf("unexpected %s result for %s", method, model), Err: err}
	}
	return nil
}

func (c *OdooClient) authenticate(ctx context.Context) (int64, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	params := map[string]any{
		"service": "common",
		"method":  "authenticate",
		"args":    []any{c.cfg.DB, c.cfg.Username, c.cfg.Password, map[string]any{}},
	}
	result, err := c.call(ctx, params)
	if err != nil {
		return 0, err
	}

	// A failed login answers false rather than an error.
	var uid int64
	if err := json.Unmarshal(result, &uid); err != nil || uid <= 0 {
		return 0, &OdooError{
			Type:    ErrorTypeAuthentication,
			Message: "authentication failed",
			Diagnostics: []string{
				fmt.Sprintf("Check the username (%s) and database (%s).", c.cfg.Username, c.cfg.DB),
				"Odoo 14+ requires an API key instead of the password.",
				"The user must have API access enabled.",
			},
		}
	}

	c.uid = uid
	c.logger.Info("Authenticated with Odoo",
		zap.String("url", logging.SanitizeConnectionString(c.cfg.URL)),
		zap.String("db", c.cfg.DB),
		zap.Int64("uid", uid))
	return uid, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

// call posts one JSON-RPC request to /jsonrpc, retrying transient failures.
func (c *OdooClient) call(ctx context.Context, params any) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.DoIfRetryable(ctx, c.retry, func() error {
		var err error
		result, err = c.post(ctx, params)
		return err
	})
	if err != nil {
		c.logger.Error("Odoo call failed", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return result, nil
}

func (c *OdooClient) post(ctx context.Context, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.cfg.URL + "/jsonrpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &OdooError{
			Type:    ErrorTypeConnection,
			Message: "connection failed",
			Diagnostics: []string{
				"Could not reach " + logging.SanitizeConnectionString(c.cfg.URL) + ".",
				"Check the URL, VPN and that the Odoo service is running.",
			},
			Err: err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OdooError{Type: ErrorTypeConnection, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &OdooError{
			Type:       ErrorTypeHTTP,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, logging.TruncateString(string(data), logging.MaxPayloadLogLength)),
			StatusCode: resp.StatusCode,
		}
	}

	var rpc rpcResponse
	if err := json.Unmarshal(data, &rpc); err != nil {
		return nil, &OdooError{
			Type:    ErrorTypeResponse,
			Message: "invalid JSON-RPC response",
			Diagnostics: []string{
				"The URL may not point at an Odoo instance, or a proxy rewrote the response.",
			},
			Err: err,
		}
	}
	if rpc.Error != nil {
		msg := rpc.Error.Message
		if rpc.Error.Data.Message != "" {
			msg += ": " + rpc.Error.Data.Message
		}
		return nil, &OdooError{
			Type:    ErrorTypeAPI,
			Message: msg,
			Diagnostics: []string{
				"Common causes: unknown model, unknown field in the domain or field list, missing access rights.",
			},
		}
	}
	return rpc.Result, nil
}

func allowedMethodNames() []string {
	names := make([]string, 0, len(AllowedMethods))
	for m := range AllowedMethods {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}
