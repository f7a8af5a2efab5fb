package domain

import "time"

const StatusAccepted = "accepted"

type InvokeRequest struct {
	Kwargs    any     `json:"kwargs"`
	RequestID *string `json:"requestId,omitempty" doc:"Caller-chosen request id, echoed in the response. Omitted or empty means the server generates one."`
	AsyncMode *bool   `json:"asyncMode,omitempty"`
}

// InvokeResponse acknowledges a submitted Job. It does not imply the Job
// was scheduled or finished.
type InvokeResponse struct {
	RequestID string `json:"requestId"`
	JobName   string `json:"jobName"`
	Status    string `json:"status" enum:"accepted"`
	Namespace string `json:"namespace"`
	TaskName  string `json:"taskName"`
}

type TaskInfo struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Image     string `json:"image"`
	Handler   string `json:"handler"`
}

type TaskListResponse struct {
	Tasks []TaskInfo `json:"tasks"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Invocation is a journal entry for an accepted invocation.
type Invocation struct {
	RequestID  string    `json:"requestId"`
	JobName    string    `json:"jobName"`
	Namespace  string    `json:"namespace"`
	TaskName   string    `json:"taskName"`
	AcceptedAt time.Time `json:"acceptedAt" format:"date-time"`
}

type InvocationListResponse struct {
	Invocations []Invocation `json:"invocations"`
}
