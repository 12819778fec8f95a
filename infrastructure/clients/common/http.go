package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"

	"github.com/google/go-querystring/query"
)

const maxBodyBytes = 4 << 20

// Inspector lets a network turn its own error body into a RemoteFailure.
// Returning nil falls back to status-code classification.
type Inspector func(status int, body []byte) *model.RemoteFailure

// HTTPClient performs remote calls with a per-call deadline and classifies failures.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
	inspect Inspector
}

func NewHTTPClient(timeout time.Duration, inspect Inspector) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		client:  &http.Client{},
		timeout: timeout,
		inspect: inspect,
	}
}

// Client exposes the underlying http.Client, used as the oauth2 transport.
func (c *HTTPClient) Client() *http.Client {
	return c.client
}

func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// Do sends req under the call timeout and returns the body of a 2xx response.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, TransportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, TransportFailure(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	logger.GetLogger().WithField("status", resp.StatusCode).WithField("url", req.URL.Path).Warn("Remote call failed")
	if c.inspect != nil {
		if f := c.inspect(resp.StatusCode, body); f != nil {
			return nil, f
		}
	}
	return nil, Classify(resp.StatusCode, body)
}

// GetJSON issues a GET with params and decodes the response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, params url.Values, bearer string, out interface{}) error {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return Permanent(model.ReasonBadResponse, err)
	}
	return c.send(ctx, req, bearer, out)
}

// PostForm encodes form (a struct with `url` tags or url.Values) as a form body.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form interface{}, bearer string, out interface{}) error {
	values, ok := form.(url.Values)
	if !ok {
		var err error
		values, err = query.Values(form)
		if err != nil {
			return Permanent(model.ReasonInvalidContent, err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return Permanent(model.ReasonBadResponse, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, req, bearer, out)
}

// PostJSON sends payload as a JSON body.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, payload interface{}, bearer string, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Permanent(model.ReasonInvalidContent, err)
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(raw))
	if err != nil {
		return Permanent(model.ReasonBadResponse, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	return c.send(ctx, req, bearer, out)
}

func (c *HTTPClient) send(ctx context.Context, req *http.Request, bearer string, out interface{}) error {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Permanent(model.ReasonBadResponse, fmt.Errorf("decode %s: %w", req.URL.Path, err))
	}
	return nil
}

// Classify maps an HTTP status to the shared error taxonomy.
func Classify(status int, body []byte) *model.RemoteFailure {
	detail := fmt.Sprintf("status %d: %s", status, truncate(body, 300))
	switch {
	case status == http.StatusTooManyRequests:
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonRateLimited, Detail: detail}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonTimeout, Detail: detail}
	case status >= 500:
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonUpstream, Detail: detail}
	case status == http.StatusUnauthorized:
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonAuthRevoked, Detail: detail}
	default:
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonRejected, Detail: detail}
	}
}

// TransportFailure classifies an error that happened before a status was received.
func TransportFailure(err error) *model.RemoteFailure {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonTimeout, Detail: err.Error(), Err: err}
	}
	return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonUpstream, Detail: err.Error(), Err: err}
}

func Permanent(reason string, err error) *model.RemoteFailure {
	return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: reason, Detail: err.Error(), Err: err}
}

func Transient(reason string, err error) *model.RemoteFailure {
	return &model.RemoteFailure{Class: model.ErrorTransient, Reason: reason, Detail: err.Error(), Err: err}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
