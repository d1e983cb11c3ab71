package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"calsync/internal/domain"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	lookups    singleflight.Group
}

var _ API = (*Client)(nil)

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func resourcePath(resourceID string, parts ...string) string {
	p := "/v1/resources/" + url.PathEscape(resourceID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) SetLabels(ctx context.Context, resourceID string, batch LabelBatch) error {
	if batch.Predict == nil {
		batch.Predict = []string{}
	}
	return c.doJSON(ctx, http.MethodPost, resourcePath(resourceID, "labels"), batch, nil)
}

func (c *Client) Confirm(ctx context.Context, resourceID, eventID string) error {
	if rec := recorderFrom(ctx); rec != nil {
		rec.add(resourceID, BatchOp{Op: OpConfirm, EventID: eventID})
		return nil
	}
	return c.doJSON(ctx, http.MethodPut, resourcePath(resourceID, "events", eventID, "confirmation"), nil, nil)
}

func (c *Client) Unconfirm(ctx context.Context, resourceID, eventID string) error {
	if rec := recorderFrom(ctx); rec != nil {
		rec.add(resourceID, BatchOp{Op: OpUnconfirm, EventID: eventID})
		return nil
	}
	return c.doJSON(ctx, http.MethodDelete, resourcePath(resourceID, "events", eventID, "confirmation"), nil, nil)
}

func (c *Client) SetConfirmationPref(ctx context.Context, resourceID, eventID string, value bool) error {
	if rec := recorderFrom(ctx); rec != nil {
		rec.add(resourceID, BatchOp{Op: OpConfirmationPref, EventID: eventID, Value: domain.Bool(value)})
		return nil
	}
	body := map[string]bool{"value": value}
	return c.doJSON(ctx, http.MethodPut, resourcePath(resourceID, "events", eventID, "preferences", "confirmation"), body, nil)
}

func (c *Client) SetFeedbackPref(ctx context.Context, resourceID, eventID string, value bool) error {
	if rec := recorderFrom(ctx); rec != nil {
		rec.add(resourceID, BatchOp{Op: OpFeedbackPref, EventID: eventID, Value: domain.Bool(value)})
		return nil
	}
	body := map[string]bool{"value": value}
	return c.doJSON(ctx, http.MethodPut, resourcePath(resourceID, "events", eventID, "preferences", "feedback"), body, nil)
}

func (c *Client) QueryEvents(ctx context.Context, resourceID string, q Query) ([]domain.Event, error) {
	v := url.Values{}
	v.Set("start", q.Start.String())
	v.Set("end", q.End.String())
	if len(q.Filter) > 0 {
		v.Set("filter", q.Filter.Signature())
	}
	var out struct {
		Events []domain.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, resourcePath(resourceID, "events")+"?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// GetEvent collapses concurrent lookups of the same id into one request.
func (c *Client) GetEvent(ctx context.Context, resourceID, eventID string) (*domain.Event, error) {
	key := resourceID + "/" + eventID
	v, err, _ := c.lookups.Do(key, func() (interface{}, error) {
		var ev domain.Event
		err := c.doJSON(ctx, http.MethodGet, resourcePath(resourceID, "events", eventID), nil, &ev)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return (*domain.Event)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		return &ev, nil
	})
	if err != nil {
		return nil, err
	}
	ev, _ := v.(*domain.Event)
	if ev == nil {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("X-Correlation-Id", "corr_"+uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := c.wait(ctx, attempt+1, ""); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			log.Debug().Str("method", method).Str("path", requestPath).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying request")
			if waitErr := c.wait(ctx, attempt+1, resp.Header.Get("Retry-After")); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		if errPayload.Message == "" {
			errPayload.Message = strings.TrimSpace(string(payload))
		}
		return &HTTPError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: errPayload.Message}
	}
}

func (c *Client) wait(ctx context.Context, attempt int, retryAfter string) error {
	d := c.retryDelay(attempt, retryAfter)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > c.maxDelay {
			d = c.maxDelay
		}
		return d
	}
	d := c.baseDelay << (attempt - 1) // 1x,2x,4x...
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}
