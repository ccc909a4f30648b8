// Package events defines event types for workflow and step lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the kafka topic orchestration events are published to.
const Topic = "conductor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow lifecycle events.
	WorkflowPlannedEvent   EventType = "workflow.planned"
	WorkflowApprovedEvent  EventType = "workflow.approved"
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowCompletedEvent EventType = "workflow.completed"

	// Step lifecycle events.
	StepDispatchedEvent       EventType = "step.dispatched"
	StepPaymentSubmittedEvent EventType = "step.payment_submitted"
	StepSucceededEvent        EventType = "step.succeeded"
	StepFailedEvent           EventType = "step.failed"
	StepCancelledEvent        EventType = "step.cancelled"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowPlanned struct {
	BaseEvent

	RequesterAddress string `json:"requester_address"`
	StepCount        int    `json:"step_count"`
}

func (e WorkflowPlanned) GetType() EventType {
	return WorkflowPlannedEvent
}

type WorkflowApproved struct {
	BaseEvent
}

func (e WorkflowApproved) GetType() EventType {
	return WorkflowApprovedEvent
}

type WorkflowStarted struct {
	BaseEvent
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type WorkflowCompleted struct {
	BaseEvent
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type StepDispatched struct {
	BaseEvent

	StepResultID string `json:"step_result_id"`
	StepNumber   int    `json:"step_number"`
	AgentID      string `json:"agent_id"`
	JobID        string `json:"job_id"`
}

func (e StepDispatched) GetType() EventType {
	return StepDispatchedEvent
}

type StepPaymentSubmitted struct {
	BaseEvent

	StepResultID string   `json:"step_result_id"`
	StepNumber   int      `json:"step_number"`
	TxnIDs       []string `json:"txn_ids"`
}

func (e StepPaymentSubmitted) GetType() EventType {
	return StepPaymentSubmittedEvent
}

type StepSucceeded struct {
	BaseEvent

	StepResultID string `json:"step_result_id"`
	StepNumber   int    `json:"step_number"`
}

func (e StepSucceeded) GetType() EventType {
	return StepSucceededEvent
}

type StepFailed struct {
	BaseEvent

	StepResultID string `json:"step_result_id"`
	StepNumber   int    `json:"step_number"`
	Reason       string `json:"reason,omitempty"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type StepCancelled struct {
	BaseEvent

	StepResultID string `json:"step_result_id"`
	StepNumber   int    `json:"step_number"`
}

func (e StepCancelled) GetType() EventType {
	return StepCancelledEvent
}
