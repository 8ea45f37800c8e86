package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowNotifier starts a Cloud Workflows execution carrying a JSON payload.
type WorkflowNotifier struct {
	client   *executions.Client
	workflow string
}

// NewWorkflowNotifier targets projects/{project}/locations/{location}/workflows/{id}.
func NewWorkflowNotifier(client *executions.Client, projectID, location, workflowID string) *WorkflowNotifier {
	return &WorkflowNotifier{
		client:   client,
		workflow: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}
}

// Notify triggers one execution with payload marshalled as its argument.
func (n *WorkflowNotifier) Notify(ctx context.Context, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: n.workflow,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := n.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
