package session

import (
	"context"
	"fmt"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/platform/metrics"
	"github.com/montybuilt/MPS-sub000/internal/progress"
)

// Dashboard is a read-only view of any learner's progress.
type Dashboard struct {
	Owner     string              `json:"profileOwner"`
	KPIs      progress.KPISummary `json:"kpis"`
	Completed progress.Set        `json:"completedCurriculums"`
	Tags      progress.TagSummary `json:"tagSummary"`
	Attempts  int                 `json:"attempts"`
}

// LoadDashboard fetches owner's full history and summarises it without
// touching the local store.
func LoadDashboard(ctx context.Context, b backend.Backend, owner string) (*Dashboard, error) {
	bundle, err := b.FetchProfile(ctx, backend.ProfileRequest{
		LastUpdateWatermark: eventlog.Epoch,
		ProfileOwner:        owner,
	})
	if err != nil {
		metrics.BackendFailures.WithLabelValues("profile").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	tree := bundle.UserAssignments
	if tree == nil {
		tree = progress.AssignmentTree{}
	}
	return &Dashboard{
		Owner:     owner,
		KPIs:      progress.CalculateKPIs(bundle.XPData, tree),
		Completed: progress.IdentifyCompletedCurriculums(bundle.XPData, tree),
		Tags:      progress.BuildTagSummary(tree),
		Attempts:  len(bundle.XPData),
	}, nil
}

// Dashboard returns the view of owner, using the active session when it
// belongs to owner.
func (c *Controller) Dashboard(ctx context.Context, owner string) (*Dashboard, error) {
	c.mu.Lock()
	if c.sess != nil && c.sess.Owner == owner {
		sess := c.sess
		d := &Dashboard{
			Owner:     owner,
			KPIs:      progress.CalculateKPIs(sess.Log.Records, sess.Tree),
			Completed: progress.NewSet(sess.Completed.Sorted()...),
			Tags:      sess.Tags,
			Attempts:  sess.Log.Len(),
		}
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()
	return LoadDashboard(ctx, c.backend, owner)
}
