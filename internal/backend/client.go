package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velofit/velofit/internal/telemetry/metrics"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TokenProvider hands the client the current access token. An empty string
// means no signed-in session; the request then carries only the API key and
// the backend's row-level security decides what (if anything) is visible.
type TokenProvider interface {
	AccessToken() string
}

// Client speaks the platform's table/row REST API. All durable state lives
// behind this API; the client never owns persistence. Row-level security is
// enforced server-side and not reimplemented here.
type Client struct {
	baseURL        string
	apiKey         string
	tokens         TokenProvider
	httpClient     *http.Client
	metricsManager *metrics.Manager
}

func NewClient(
	baseURL, apiKey string,
	tokens TokenProvider,
	httpClient *http.Client,
	metricsManager *metrics.Manager,
) *Client {
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         apiKey,
		tokens:         tokens,
		httpClient:     httpClient,
		metricsManager: metricsManager,
	}
}

type Filter struct {
	Column string
	Op     string // eq, neq, gt, gte, lt, lte, in
	Value  string
}

func Eq(column, value string) Filter  { return Filter{Column: column, Op: "eq", Value: value} }
func Neq(column, value string) Filter { return Filter{Column: column, Op: "neq", Value: value} }
func Gt(column, value string) Filter  { return Filter{Column: column, Op: "gt", Value: value} }
func Gte(column, value string) Filter { return Filter{Column: column, Op: "gte", Value: value} }
func Lt(column, value string) Filter  { return Filter{Column: column, Op: "lt", Value: value} }
func Lte(column, value string) Filter { return Filter{Column: column, Op: "lte", Value: value} }

func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: "in", Value: "(" + strings.Join(values, ",") + ")"}
}

type Order struct {
	Column string
	Desc   bool
}

type SelectParams struct {
	Filters []Filter
	Order   *Order
	Limit   int
	Offset  int
}

func (c *Client) tableURL(table string, filters []Filter, params *SelectParams) string {
	query := url.Values{}
	for _, f := range filters {
		query.Add(f.Column, f.Op+"."+f.Value)
	}
	if params != nil {
		if params.Order != nil {
			direction := "asc"
			if params.Order.Desc {
				direction = "desc"
			}
			query.Set("order", params.Order.Column+"."+direction)
		}
		if params.Limit > 0 {
			query.Set("limit", strconv.Itoa(params.Limit))
		}
		if params.Offset > 0 {
			query.Set("offset", strconv.Itoa(params.Offset))
		}
	}

	u := c.baseURL + "/rest/v1/" + table
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// Select reads rows from table into out (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, params SelectParams, out any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.select")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	operation := "select " + table
	respBytes, _, err := c.do(ctx, http.MethodGet, c.tableURL(table, params.Filters, &params), nil, nil, operation)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return &RemoteError{Operation: operation, Message: fmt.Sprintf("unmarshal response: %s", err)}
	}
	return nil
}

// Insert creates the given record. When out is non-nil the created
// representation is decoded into it.
func (c *Client) Insert(ctx context.Context, table string, record, out any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.insert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	return c.write(ctx, http.MethodPost, table, nil, record, out, "insert "+table, false)
}

// Upsert inserts the record, overwriting an existing row on conflict.
func (c *Client) Upsert(ctx context.Context, table string, record, out any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	return c.write(ctx, http.MethodPost, table, nil, record, out, "upsert "+table, true)
}

// Update patches all rows matching filters.
func (c *Client) Update(ctx context.Context, table string, filters []Filter, patch, out any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	return c.write(ctx, http.MethodPatch, table, filters, patch, out, "update "+table, false)
}

// Delete removes all rows matching filters.
func (c *Client) Delete(ctx context.Context, table string, filters []Filter) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	_, _, err = c.do(ctx, http.MethodDelete, c.tableURL(table, filters, nil), nil, nil, "delete "+table)
	return err
}

// Count returns the exact number of rows matching filters, read from the
// Content-Range response header so no row payload crosses the wire.
func (c *Client) Count(ctx context.Context, table string, filters []Filter) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", table))

	operation := "count " + table
	headers := map[string]string{"Prefer": "count=exact"}
	_, respHeaders, err := c.do(ctx, http.MethodHead, c.tableURL(table, filters, nil), nil, headers, operation)
	if err != nil {
		return -1, err
	}

	// Content-Range: 0-24/3573
	contentRange := respHeaders.Get("Content-Range")
	slashIdx := strings.LastIndex(contentRange, "/")
	if slashIdx < 0 {
		return -1, &RemoteError{Operation: operation, Message: "missing count in response"}
	}
	count, parseErr := strconv.Atoi(contentRange[slashIdx+1:])
	if parseErr != nil {
		return -1, &RemoteError{Operation: operation, Message: fmt.Sprintf("parse count [%s]: %s", contentRange, parseErr)}
	}

	span.SetAttributes(attribute.Int("count", count))
	return count, nil
}

// Rpc invokes a named remote procedure. Remote procedures run atomically
// server-side: the client reflects the returned state and never computes
// the transition itself from partial reads.
func (c *Client) Rpc(ctx context.Context, name string, args, out any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backend.rpc")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("rpc", name))

	operation := "rpc " + name
	var body io.Reader
	if args != nil {
		argBytes, err := json.Marshal(args)
		if err != nil {
			return &RemoteError{Operation: operation, Message: fmt.Sprintf("marshal args: %s", err)}
		}
		body = bytes.NewReader(argBytes)
	}

	respBytes, _, err := c.do(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+name, body, nil, operation)
	if err != nil {
		return err
	}
	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return &RemoteError{Operation: operation, Message: fmt.Sprintf("unmarshal response: %s", err)}
		}
	}
	return nil
}

func (c *Client) write(
	ctx context.Context,
	method, table string,
	filters []Filter,
	record, out any,
	operation string,
	upsert bool,
) error {
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &RemoteError{Operation: operation, Message: fmt.Sprintf("marshal record: %s", err)}
	}

	prefer := "return=representation"
	if upsert {
		prefer += ",resolution=merge-duplicates"
	}
	headers := map[string]string{"Prefer": prefer}

	respBytes, _, err := c.do(ctx, method, c.tableURL(table, filters, nil), bytes.NewReader(recordBytes), headers, operation)
	if err != nil {
		return err
	}

	if out != nil && len(respBytes) > 0 {
		// writes return an array of affected rows; a single-row write can be
		// decoded straight into a struct pointer
		if err := json.Unmarshal(respBytes, out); err != nil {
			var rows []json.RawMessage
			if arrErr := json.Unmarshal(respBytes, &rows); arrErr == nil && len(rows) > 0 {
				if err := json.Unmarshal(rows[0], out); err == nil {
					return nil
				}
			}
			return &RemoteError{Operation: operation, Message: fmt.Sprintf("unmarshal response: %s", err)}
		}
	}
	return nil
}

func (c *Client) do(
	ctx context.Context,
	method, reqURL string,
	body io.Reader,
	headers map[string]string,
	operation string,
) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, nil, &RemoteError{Operation: operation, Message: err.Error()}
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metricsManager.CounterAPIRequests.WithLabelValues(operation, "transport_error").Inc()
		return nil, nil, &RemoteError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.metricsManager.HistogramAPIRequestDuration.
		WithLabelValues(operation).
		Observe(time.Since(start).Seconds())
	c.metricsManager.CounterAPIRequests.
		WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &RemoteError{Operation: operation, Message: fmt.Sprintf("read response: %s", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := remoteError(operation, resp.StatusCode, respBytes)
		log.Errorf("backend %s: %s", operation, remoteErr.Message)
		return nil, nil, remoteErr
	}

	return respBytes, resp.Header, nil
}
