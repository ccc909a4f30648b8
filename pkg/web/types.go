// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/0rca-network/conductor/pkg/models"
)

// CreateWorkflowRequest represents the request body for planning a new workflow.
type CreateWorkflowRequest struct {
	UserMessage      string `json:"user_message"      validate:"required,min=3"`
	RequesterAddress string `json:"requester_address" validate:"required"`
}

// DispatchStepRequest represents the request body for dispatching a step.
// SenderAddress defaults to the workflow's requester address when empty.
type DispatchStepRequest struct {
	StepNumber    int    `json:"step_number"              validate:"required,min=1"`
	SenderAddress string `json:"sender_address,omitempty"`
}

// SubmitPaymentRequest represents the request body for submitting signed
// payment transaction ids for a step.
type SubmitPaymentRequest struct {
	TxnIDs []string `json:"txn_ids" validate:"required,min=1,dive,required"`
}

// SubmitPaymentResponse carries the access token returned by the agent.
type SubmitPaymentResponse struct {
	AccessToken string `json:"access_token"`
}

// StepResultResponse is the API shape of a step result. The access token is
// never exposed.
type StepResultResponse struct {
	ID            string     `json:"id"`
	StepNumber    int        `json:"step_number"`
	AgentID       string     `json:"agent_id"`
	AgentName     string     `json:"agent_name"`
	Status        string     `json:"status"`
	JobID         string     `json:"job_id,omitempty"`
	UnsignedTxns  []string   `json:"unsigned_group_txns,omitempty"`
	TxnIDs        []string   `json:"txn_ids,omitempty"`
	Output        string     `json:"output,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// WorkflowResponse is the API shape of a workflow with its step results.
type WorkflowResponse struct {
	ID               string               `json:"id"`
	UserMessage      string               `json:"user_message"`
	RequesterAddress string               `json:"requester_address"`
	Plan             *models.Plan         `json:"plan"`
	Status           string               `json:"status"`
	CurrentStep      int                  `json:"current_step"`
	Steps            []StepResultResponse `json:"steps"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// TransformStepResponse filters a step result for API exposure.
func TransformStepResponse(step *models.StepResult) StepResultResponse {
	return StepResultResponse{
		ID:            step.ID,
		StepNumber:    step.StepNumber,
		AgentID:       step.AgentID,
		AgentName:     step.AgentName,
		Status:        string(step.Status),
		JobID:         step.JobID,
		UnsignedTxns:  step.UnsignedTxns,
		TxnIDs:        step.TxnIDs,
		Output:        step.Output,
		FailureReason: step.FailureReason,
		CompletedAt:   step.CompletedAt,
	}
}

// TransformWorkflowResponse assembles the workflow response from a workflow
// and its ordered step results.
func TransformWorkflowResponse(workflow *models.Workflow, steps []*models.StepResult) WorkflowResponse {
	response := WorkflowResponse{
		ID:               workflow.ID,
		UserMessage:      workflow.UserMessage,
		RequesterAddress: workflow.RequesterAddress,
		Plan:             workflow.Plan,
		Status:           string(workflow.Status),
		CurrentStep:      workflow.CurrentStep,
		Steps:            make([]StepResultResponse, 0, len(steps)),
		CreatedAt:        workflow.CreatedAt,
		UpdatedAt:        workflow.UpdatedAt,
	}

	for _, step := range steps {
		response.Steps = append(response.Steps, TransformStepResponse(step))
	}

	return response
}
