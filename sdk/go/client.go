package tasklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal taskline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Health is the /health payload.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// TaskInfo is the listing summary of a task.
type TaskInfo struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Image     string `json:"image"`
	Handler   string `json:"handler"`
}

// Task represents the Task resource (partial).
type Task struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Metadata   struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace"`
		Labels    map[string]string `json:"labels,omitempty"`
	} `json:"metadata"`
	Spec struct {
		Image           string `json:"image"`
		ImagePullPolicy string `json:"imagePullPolicy"`
		Handler         string `json:"handler"`
		Timeout         int64  `json:"timeout"`
		Env             []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"env,omitempty"`
		Resources struct {
			Limits   map[string]string `json:"limits,omitempty"`
			Requests map[string]string `json:"requests,omitempty"`
		} `json:"resources"`
	} `json:"spec"`
	Status struct {
		Executions    int64  `json:"executions"`
		LastExecution string `json:"lastExecution,omitempty"`
	} `json:"status"`
}

// InvokeRequest is the invocation payload. Kwargs is forwarded to the task
// as JSON.
type InvokeRequest struct {
	Kwargs    any    `json:"kwargs"`
	RequestID string `json:"requestId,omitempty"`
	AsyncMode *bool  `json:"asyncMode,omitempty"`
}

// InvokeResponse acknowledges a submitted Job.
type InvokeResponse struct {
	RequestID string `json:"requestId"`
	JobName   string `json:"jobName"`
	Status    string `json:"status"`
	Namespace string `json:"namespace"`
	TaskName  string `json:"taskName"`
}

// Invocation is one journaled invocation.
type Invocation struct {
	RequestID  string    `json:"requestId"`
	JobName    string    `json:"jobName"`
	Namespace  string    `json:"namespace"`
	TaskName   string    `json:"taskName"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Message returns the error field of the response envelope, or the raw body.
func (e *APIError) Message() string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &env); err == nil && env.Error != "" {
		return env.Error
	}
	return e.Body
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// ListTasks lists tasks in every namespace.
func (c *Client) ListTasks(ctx context.Context) ([]TaskInfo, error) {
	var resp struct {
		Tasks []TaskInfo `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp.Tasks, err
}

func (c *Client) GetTask(ctx context.Context, namespace, name string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, taskPath(namespace, name, ""), nil, &resp)
	return resp, err
}

// Invoke submits one execution of namespace/name.
func (c *Client) Invoke(ctx context.Context, namespace, name string, req InvokeRequest) (InvokeResponse, error) {
	var resp InvokeResponse
	err := c.do(ctx, http.MethodPost, taskPath(namespace, name, "invoke"), req, &resp)
	return resp, err
}

// InvokeDefault invokes name in the server's default namespace.
func (c *Client) InvokeDefault(ctx context.Context, name string, req InvokeRequest) (InvokeResponse, error) {
	var resp InvokeResponse
	err := c.do(ctx, http.MethodPost, "invoke/"+url.PathEscape(name), req, &resp)
	return resp, err
}

// Invocations lists recent invocations, newest first. limit <= 0 uses the
// server default.
func (c *Client) Invocations(ctx context.Context, namespace, name string, limit int) ([]Invocation, error) {
	var resp struct {
		Invocations []Invocation `json:"invocations"`
	}
	endpoint := taskPath(namespace, name, "invocations")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Invocations, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func taskPath(namespace, name, suffix string) string {
	p := fmt.Sprintf("tasks/%s/%s", url.PathEscape(namespace), url.PathEscape(name))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
