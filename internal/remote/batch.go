package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

const (
	OpConfirm          = "confirm"
	OpUnconfirm        = "unconfirm"
	OpConfirmationPref = "confirmation_pref"
	OpFeedbackPref     = "feedback_pref"
)

// BatchOp is one grouped call inside a batch request.
type BatchOp struct {
	Op      string `json:"op"`
	EventID string `json:"event_id"`
	Value   *bool  `json:"value,omitempty"`
}

type BatchRequest struct {
	Ops []BatchOp `json:"ops"`
}

type BatchResult struct {
	EventID string `json:"event_id"`
	Error   string `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchResult `json:"results"`
}

type batchKey struct{}

type recorder struct {
	mu    sync.Mutex
	order []string
	ops   map[string][]BatchOp
}

func (r *recorder) add(resourceID string, op BatchOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[resourceID]; !ok {
		r.order = append(r.order, resourceID)
	}
	r.ops[resourceID] = append(r.ops[resourceID], op)
}

func recorderFrom(ctx context.Context) *recorder {
	rec, _ := ctx.Value(batchKey{}).(*recorder)
	return rec
}

// Batch records the confirmation and preference calls fn makes and sends
// them as one request per resource once fn returns. Other calls made inside
// fn go out immediately.
func (c *Client) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if recorderFrom(ctx) != nil {
		return fn(ctx)
	}
	rec := &recorder{ops: map[string][]BatchOp{}}
	if err := fn(context.WithValue(ctx, batchKey{}, rec)); err != nil {
		return err
	}
	var errs []error
	for _, resourceID := range rec.order {
		var resp BatchResponse
		err := c.doJSON(ctx, http.MethodPost, resourcePath(resourceID, "batch"), BatchRequest{Ops: rec.ops[resourceID]}, &resp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, res := range resp.Results {
			if res.Error != "" {
				errs = append(errs, fmt.Errorf("batch op on %s: %s", res.EventID, res.Error))
			}
		}
	}
	return errors.Join(errs...)
}
