package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/stretchr/testify/assert"
)

func TestWaitForApproval(t *testing.T) {

	step := api.RolloutStep{Name: "provision-green", Action: api.StepActionProvisionGreen}

	t.Run("ReturnsNilImmediatelyWhenAutoApproving", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{AutoApprove: true})

		// act
		err := client.WaitForApproval(context.Background(), "abc", step)

		assert.Nil(t, err)
	})

	t.Run("ReturnsNilOnceApproved", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{Timeout: 5 * time.Second})
		go approveWhenPending(client, "abc", step.Name)

		// act
		err := client.WaitForApproval(context.Background(), "abc", step)

		assert.Nil(t, err)
		assert.Equal(t, 0, len(client.GetPendingApprovals()))
	})

	t.Run("ReturnsErrRejectedOnceRejected", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{Timeout: 5 * time.Second})
		go func() {
			for len(client.GetPendingApprovals()) == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			_ = client.Reject("abc", step.Name, "error budget exhausted")
		}()

		// act
		err := client.WaitForApproval(context.Background(), "abc", step)

		assert.True(t, errors.Is(err, ErrRejected))
	})

	t.Run("ReturnsErrorWhenTimeoutExpires", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{Timeout: 50 * time.Millisecond})

		// act
		err := client.WaitForApproval(context.Background(), "abc", step)

		assert.NotNil(t, err)
	})

	t.Run("ReturnsContextErrorWhenCanceled", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{Timeout: 5 * time.Second})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// act
		err := client.WaitForApproval(ctx, "abc", step)

		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestApprove(t *testing.T) {

	t.Run("ReturnsErrApprovalNotFoundWhenNothingIsPending", func(t *testing.T) {

		client := NewClient(config.ApprovalConfig{})

		// act
		err := client.Approve("abc", "switch-traffic")

		assert.True(t, errors.Is(err, ErrApprovalNotFound))
	})
}

func approveWhenPending(client Client, pipelineID, step string) {
	for {
		for _, a := range client.GetPendingApprovals() {
			if a.PipelineID == pipelineID && a.Step == step {
				_ = client.Approve(pipelineID, step)
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}
