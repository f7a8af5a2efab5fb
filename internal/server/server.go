package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/version"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	Auth   AuthConfig
	Log    *logrus.Logger
	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

const maxInvocationsLimit = 500

// apiError models the {error, details} envelope.
type apiError struct {
	status  int
	Message string `json:"error" example:"echo"`
	Details string `json:"details" example:"Task not found: echo"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Details }

// New returns an HTTP handler exposing the taskline API.
func New(cfg Config) (http.Handler, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Body validation failures are client errors.
			status = http.StatusBadRequest
		}
		details := msg
		if len(errs) > 0 {
			parts := make([]string, 0, len(errs))
			for _, err := range errs {
				if err != nil {
					parts = append(parts, err.Error())
				}
			}
			details = fmt.Sprintf("%s: %s", msg, strings.Join(parts, "; "))
		}
		return newAPIError(status, msg, details)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return huma.NewError(status, msg, errs...)
	}

	router := chi.NewRouter()
	router.Use(newRequestLogger(log))
	router.Use(newAuthMiddleware(cfg.Auth, log))

	hcfg := huma.DefaultConfig("Taskline API", version.Version)
	hcfg.OpenAPIPath = "" // served below with error responses filled in
	hcfg.DocsPath = ""
	hcfg.CreateHooks = nil // keep $schema links out of response bodies
	api := humachi.New(router, hcfg)

	registerDocs(router)
	registerMetrics(router, gatherer)
	registerHealth(api)
	registerTasks(api, cfg.Engine)
	registerInvoke(api, cfg.Engine)
	registerInvocations(api, cfg.Engine)
	registerOpenAPI(router, api, cfg.Auth.Enabled())

	return router, nil
}

func newAPIError(status int, message, details string) huma.StatusError {
	return &apiError{
		status:  status,
		Message: message,
		Details: details,
	}
}

// handleError maps domain error kinds onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		return newAPIError(http.StatusInternalServerError, err.Error(), err.Error())
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindTaskNotFound:
		status = http.StatusNotFound
	case domain.KindInvalid, domain.KindSerialization:
		status = http.StatusBadRequest
	case domain.KindConfig, domain.KindOrchestrator:
		status = http.StatusInternalServerError
	}
	return newAPIError(status, de.Message(), de.Error())
}

func registerDocs(r chi.Router) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML())
	})
}

func registerMetrics(r chi.Router, g prometheus.Gatherer) {
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func registerOpenAPI(r chi.Router, api huma.API, authEnabled bool) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if authEnabled {
				applyAuthSecurity(oas)
			}
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if isPublicPath(route) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML() string {
	return `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '/openapi.json',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`
}

var errorStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.HealthResponse
	}, error) {
		return &struct {
			Body domain.HealthResponse
		}{Body: domain.HealthResponse{Status: "healthy", Version: version.Version}}, nil
	})
}

type taskPath struct {
	Namespace string `path:"namespace" doc:"Namespace of the task"`
	TaskName  string `path:"taskName" doc:"Name of the task"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks in every namespace",
		Errors:      errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.TaskListResponse
	}, error) {
		infos, err := e.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskListResponse
		}{Body: domain.TaskListResponse{Tasks: infos}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{namespace}/{taskName}",
		Summary:     "Get a task",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task
	}, error) {
		task, err := e.GetTask(ctx, input.Namespace, input.TaskName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task
		}{Body: task}, nil
	})
}

func registerInvoke(api huma.API, e engine.Engine) {
	type invokeInput struct {
		Namespace string `path:"namespace" doc:"Namespace of the task"`
		TaskName  string `path:"taskName" doc:"Name of the task"`
		Body      domain.InvokeRequest
	}
	type defaultInvokeInput struct {
		TaskName string `path:"taskName" doc:"Name of the task in the default namespace"`
		Body     domain.InvokeRequest
	}
	type invokeOutput struct {
		Body domain.InvokeResponse
	}

	huma.Register(api, huma.Operation{
		OperationID: "invoke-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{namespace}/{taskName}/invoke",
		Summary:     "Invoke a task",
		Description: "Creates a Job for one execution and returns without waiting for it.",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *invokeInput) (*invokeOutput, error) {
		res, err := e.Invoke(withCaller(ctx), input.Namespace, input.TaskName, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &invokeOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invoke-default-task",
		Method:      http.MethodPost,
		Path:        "/invoke/{taskName}",
		Summary:     "Invoke a task in the default namespace",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *defaultInvokeInput) (*invokeOutput, error) {
		res, err := e.InvokeDefault(withCaller(ctx), input.TaskName, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &invokeOutput{Body: res}, nil
	})
}

func registerInvocations(api huma.API, e engine.Engine) {
	type input struct {
		Namespace string `path:"namespace" doc:"Namespace of the task"`
		TaskName  string `path:"taskName" doc:"Name of the task"`
		Limit     int    `query:"limit" default:"50" minimum:"1" doc:"Maximum number of entries"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-invocations",
		Method:      http.MethodGet,
		Path:        "/tasks/{namespace}/{taskName}/invocations",
		Summary:     "Recent invocations of a task",
		Errors:      errorStatuses,
	}, func(ctx context.Context, in *input) (*struct {
		Body domain.InvocationListResponse
	}, error) {
		items, err := e.Invocations(ctx, in.Namespace, in.TaskName, normalizeLimit(in.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InvocationListResponse
		}{Body: domain.InvocationListResponse{Invocations: items}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > maxInvocationsLimit {
		return maxInvocationsLimit
	}
	return in
}
