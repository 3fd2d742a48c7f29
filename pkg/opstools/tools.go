package opstools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aldan/opschat/pkg/engine"
	"github.com/aldan/opschat/pkg/session"
	"github.com/aldan/opschat/pkg/toolregistry"
)

// dashboardSystemPrompt constrains the engine call used by the
// generate_dashboard tool. The call runs in structured output mode,
// so the response must be a single JSON object.
const dashboardSystemPrompt = `You are a dashboard definition generator for an operations platform.
Given a title and a list of metrics, produce a dashboard definition as a single JSON object
with the fields "title" (string), "panels" (array of objects with "title", "metric", and
"visualization" fields), and "refresh_interval" (string duration like "30s").
Output only the JSON object.`

// Options configures ops tool registration.
type Options struct {
	Metrics    *MetricsClient
	Dashboards *DashboardClient

	// Engine and DashboardModel drive the generate_dashboard tool,
	// which synthesizes a definition through a structured-output
	// reasoning call before submitting it to the dashboard service.
	Engine         engine.Client
	DashboardModel string
}

// Register registers the ops tools against the registry.
func Register(registry *toolregistry.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	if opts.Metrics == nil {
		return errors.New("metrics client is required")
	}

	tools := []toolregistry.Definition{
		queryMetricsTool(opts),
		serviceHealthTool(opts),
	}
	if opts.Dashboards != nil && opts.Engine != nil {
		tools = append(tools, generateDashboardTool(opts))
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func queryMetricsTool(opts Options) toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "query_metrics",
		Description: "Query a metric series from the metrics service, optionally scoped to one service and time window.",
		Parameters: []toolregistry.Parameter{
			{Name: "metric", Type: "string", Description: "Metric name, e.g. cpu_usage or request_latency_p99", Required: true},
			{Name: "service", Type: "string", Description: "Service name to scope the query to", Required: false},
			{Name: "window", Type: "string", Description: "Time window like 5m, 1h, 24h", Required: false, Default: "15m"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			metric, _ := args["metric"].(string)
			metric = strings.TrimSpace(metric)
			if metric == "" {
				return "", fmt.Errorf("metric is required")
			}

			service, _ := args["service"].(string)
			window, _ := args["window"].(string)
			if window == "" {
				window = "15m"
			}

			return opts.Metrics.Query(ctx, metric, service, window)
		},
	}
}

func serviceHealthTool(opts Options) toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "service_health",
		Description: "Fetch the current health summary for a service, including status and recent error rate.",
		Parameters: []toolregistry.Parameter{
			{Name: "service", Type: "string", Description: "Service name", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			service, _ := args["service"].(string)
			service = strings.TrimSpace(service)
			if service == "" {
				return "", fmt.Errorf("service is required")
			}

			return opts.Metrics.ServiceHealth(ctx, service)
		},
	}
}

func generateDashboardTool(opts Options) toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "generate_dashboard",
		Description: "Generate a dashboard for a set of metrics and publish it to the dashboard service. Returns the dashboard location.",
		Parameters: []toolregistry.Parameter{
			{Name: "title", Type: "string", Description: "Dashboard title", Required: true},
			{Name: "metrics", Type: "array", Description: "Metric names to include as panels", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			title, _ := args["title"].(string)
			title = strings.TrimSpace(title)
			if title == "" {
				return "", fmt.Errorf("title is required")
			}

			rawMetrics, _ := args["metrics"].([]interface{})
			metricNames := make([]string, 0, len(rawMetrics))
			for _, m := range rawMetrics {
				if name, ok := m.(string); ok && name != "" {
					metricNames = append(metricNames, name)
				}
			}
			if len(metricNames) == 0 {
				return "", fmt.Errorf("at least one metric is required")
			}

			prompt := fmt.Sprintf("Create a dashboard titled %q covering these metrics: %s",
				title, strings.Join(metricNames, ", "))

			answer, err := opts.Engine.Invoke(ctx, engine.Request{
				Model:        opts.DashboardModel,
				SystemPrompt: dashboardSystemPrompt,
				Messages: []session.Message{
					{Role: session.RoleUser, Content: prompt},
				},
				JSONMode: true,
			})
			if err != nil {
				return "", fmt.Errorf("dashboard generation failed: %w", err)
			}

			definition := strings.TrimSpace(answer.Text)
			if !json.Valid([]byte(definition)) {
				return "", fmt.Errorf("dashboard generation produced invalid JSON")
			}

			return opts.Dashboards.Create(ctx, []byte(definition))
		},
	}
}
