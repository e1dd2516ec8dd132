package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
)

var (
	// ErrApprovalNotFound is returned when nothing waits for the approval being given
	ErrApprovalNotFound = errors.New("no pending approval")
	// ErrRejected is returned from WaitForApproval when the step got rejected
	ErrRejected = errors.New("approval rejected")
)

// Approval is a rollout step waiting for a manual decision
type Approval struct {
	PipelineID  string    `json:"pipelineId"`
	Step        string    `json:"step"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Client blocks rollout steps until someone approves or rejects them
//go:generate mockgen -package=approval -destination ./mock.go -source=client.go
type Client interface {
	WaitForApproval(ctx context.Context, pipelineID string, step api.RolloutStep) error
	Approve(pipelineID, step string) error
	Reject(pipelineID, step, reason string) error
	GetPendingApprovals() []Approval
}

// NewClient returns an approval.Client
func NewClient(config config.ApprovalConfig) Client {
	return &client{
		config:  config,
		pending: map[string]*pendingApproval{},
	}
}

type client struct {
	config  config.ApprovalConfig
	mu      sync.Mutex
	pending map[string]*pendingApproval
}

type pendingApproval struct {
	approval Approval
	decision chan error
}

func approvalKey(pipelineID, step string) string {
	return pipelineID + "/" + step
}

func (c *client) WaitForApproval(ctx context.Context, pipelineID string, step api.RolloutStep) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, "WaitForApproval")
	defer span.Finish()
	span.SetTag("pipeline", pipelineID)
	span.SetTag("step", step.Name)

	if c.config.AutoApprove {
		log.Info().Msgf("[%v] Auto-approving step %v", pipelineID, step.Name)
		return nil
	}

	key := approvalKey(pipelineID, step.Name)
	p := &pendingApproval{
		approval: Approval{PipelineID: pipelineID, Step: step.Name, RequestedAt: time.Now().UTC()},
		decision: make(chan error, 1),
	}

	c.mu.Lock()
	c.pending[key] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	log.Info().Msgf("[%v] Waiting for approval of step %v", pipelineID, step.Name)

	var timeout <-chan time.Time
	if c.config.Timeout > 0 {
		timer := time.NewTimer(c.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-p.decision:
		return err
	case <-timeout:
		return fmt.Errorf("step %v wasn't approved within %v", step.Name, c.config.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) Approve(pipelineID, step string) error {
	return c.decide(pipelineID, step, nil)
}

func (c *client) Reject(pipelineID, step, reason string) error {
	if reason == "" {
		return c.decide(pipelineID, step, ErrRejected)
	}
	return c.decide(pipelineID, step, fmt.Errorf("%w: %v", ErrRejected, reason))
}

func (c *client) decide(pipelineID, step string, decision error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[approvalKey(pipelineID, step)]
	if !ok {
		return fmt.Errorf("%w for step %v of pipeline %v", ErrApprovalNotFound, step, pipelineID)
	}

	// a second decision before the waiter picked up the first one is dropped
	select {
	case p.decision <- decision:
	default:
	}

	log.Info().Msgf("[%v] Step %v decided: approved=%v", pipelineID, step, decision == nil)

	return nil
}

func (c *client) GetPendingApprovals() []Approval {
	c.mu.Lock()
	defer c.mu.Unlock()

	approvals := make([]Approval, 0, len(c.pending))
	for _, p := range c.pending {
		approvals = append(approvals, p.approval)
	}
	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].RequestedAt.Before(approvals[j].RequestedAt)
	})

	return approvals
}
