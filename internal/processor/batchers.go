package processor

import (
	"context"

	"calsync/internal/domain"
	"calsync/internal/remote"
	"calsync/internal/request"
)

type labelEntry struct {
	labels *[]string
	hidden *bool
}

// mergeLabels folds updates per id in arrival order. Hiding clears labels;
// setting labels without saying otherwise unhides.
func mergeLabels(items []request.Request) remote.LabelBatch {
	var order []string
	entries := map[string]*labelEntry{}
	for _, it := range items {
		u := it.(request.LabelUpdate)
		e, ok := entries[u.ID]
		if !ok {
			e = &labelEntry{}
			entries[u.ID] = e
			order = append(order, u.ID)
		}
		if u.Labels != nil {
			e.labels = domain.Strings((*u.Labels)...)
			if u.Hidden == nil {
				e.hidden = domain.Bool(false)
			}
		}
		if u.Hidden != nil {
			e.hidden = domain.Bool(*u.Hidden)
			if *u.Hidden {
				e.labels = nil
			}
		}
	}

	batch := remote.LabelBatch{Set: make([]remote.LabelSet, 0, len(order)), Predict: []string{}}
	for _, id := range order {
		e := entries[id]
		batch.Set = append(batch.Set, remote.LabelSet{ID: id, Labels: e.labels, Hidden: e.hidden})
		if e.hidden == nil || !*e.hidden {
			batch.Predict = append(batch.Predict, id)
		}
	}
	return batch
}

func pushLabels(ctx context.Context, deps request.Deps, items []request.Request) error {
	return deps.API.SetLabels(ctx, deps.ResourceID, mergeLabels(items))
}

// lastValues keeps the latest value per event id, ordered by first mention.
func lastValues(items []request.Request, get func(request.Request) (string, bool)) ([]string, map[string]bool) {
	var order []string
	values := map[string]bool{}
	for _, it := range items {
		id, v := get(it)
		if _, ok := values[id]; !ok {
			order = append(order, id)
		}
		values[id] = v
	}
	return order, values
}

func fanOut(ctx context.Context, api remote.API, order []string, values map[string]bool, call func(ctx context.Context, id string, v bool) error) error {
	return api.Batch(ctx, func(ctx context.Context) error {
		for _, id := range order {
			if err := call(ctx, id, values[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

func pushConfirmations(ctx context.Context, deps request.Deps, items []request.Request) error {
	order, values := lastValues(items, func(r request.Request) (string, bool) {
		v := r.(request.SetConfirmation)
		return v.EventID, v.Value
	})
	return fanOut(ctx, deps.API, order, values, func(ctx context.Context, id string, v bool) error {
		if v {
			return deps.API.Confirm(ctx, deps.ResourceID, id)
		}
		return deps.API.Unconfirm(ctx, deps.ResourceID, id)
	})
}

func pushConfirmationPrefs(ctx context.Context, deps request.Deps, items []request.Request) error {
	order, values := lastValues(items, func(r request.Request) (string, bool) {
		v := r.(request.SetConfirmationPref)
		return v.EventID, v.Value
	})
	return fanOut(ctx, deps.API, order, values, func(ctx context.Context, id string, v bool) error {
		return deps.API.SetConfirmationPref(ctx, deps.ResourceID, id, v)
	})
}

func pushFeedbackPrefs(ctx context.Context, deps request.Deps, items []request.Request) error {
	order, values := lastValues(items, func(r request.Request) (string, bool) {
		v := r.(request.SetFeedbackPref)
		return v.EventID, v.Value
	})
	return fanOut(ctx, deps.API, order, values, func(ctx context.Context, id string, v bool) error {
		return deps.API.SetFeedbackPref(ctx, deps.ResourceID, id, v)
	})
}
