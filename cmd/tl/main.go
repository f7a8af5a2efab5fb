package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/engine/jobspec"
	"taskline/internal/logger"
	"taskline/internal/version"
	tasklinesdk "taskline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline runs short-lived workloads described by Task resources.
- Task: a lambda.example.com/v1 resource naming an image, a handler, env, resources and a timeout.
- Invocation: one execution of a task with JSON kwargs; it becomes a Kubernetes Job and returns at once.
- Server: 'tl serve' runs the HTTP API and the Task controller against the current cluster.
- Client: the other commands talk to a running server (--server, --token).`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file for serve")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "taskline API base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the API")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(versionCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Task controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), viper.GetString("config"))
			if err != nil {
				return err
			}
			log, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return domain.Configf("%v", err)
			}
			log.WithField("version", version.String()).Info("starting taskline")

			ctx := ctrl.SetupSignalHandler()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Short: "Inspect tasks"}
	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(tasksGetCmd())
	cmd.AddCommand(tasksInvocationsCmd())
	return cmd
}

func tasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks in every namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := newClient().ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(tasks)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Namespace", "Name", "Image", "Handler"})
			for _, t := range tasks {
				tw.AppendRow(table.Row{t.Namespace, t.Name, t.Image, t.Handler})
			}
			tw.Render()
			return nil
		},
	}
}

func tasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <namespace> <name>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newClient().GetTask(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(task)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendRows([]table.Row{
				{"Name", task.Metadata.Name},
				{"Namespace", task.Metadata.Namespace},
				{"Image", task.Spec.Image},
				{"Pull policy", task.Spec.ImagePullPolicy},
				{"Handler", task.Spec.Handler},
				{"Timeout", fmt.Sprintf("%ds", task.Spec.Timeout)},
				{"Env", len(task.Spec.Env)},
				{"Executions", task.Status.Executions},
			})
			tw.Render()
			return nil
		},
	}
}

func tasksInvocationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "invocations <namespace> <name>",
		Short: "Recent invocations recorded by the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().Invocations(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Accepted", "Request ID", "Job"})
			for _, inv := range items {
				tw.AppendRow(table.Row{inv.AcceptedAt.Format("2006-01-02 15:04:05"), inv.RequestID, inv.JobName})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

func invokeCmd() *cobra.Command {
	var namespace, kwargs, requestID string
	cmd := &cobra.Command{
		Use:   "invoke <task>",
		Short: "Invoke a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kw, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}
			req := tasklinesdk.InvokeRequest{Kwargs: kw, RequestID: requestID}
			c := newClient()
			var res tasklinesdk.InvokeResponse
			if namespace == "" {
				res, err = c.InvokeDefault(cmd.Context(), args[0], req)
			} else {
				res, err = c.Invoke(cmd.Context(), namespace, args[0], req)
			}
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("%s %s/%s job=%s requestId=%s\n", res.Status, res.Namespace, res.TaskName, res.JobName, res.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "task namespace (server default when empty)")
	cmd.Flags().StringVar(&kwargs, "kwargs", "{}", "JSON arguments")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id (generated when empty)")
	return cmd
}

func renderCmd() *cobra.Command {
	var file, namespace, kwargs, requestID string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Job a Task manifest would produce, without a cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			kw, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}
			out, err := renderJob(data, namespace, domain.InvokeRequest{Kwargs: kw, RequestID: optional(requestID)}, jobspec.NewBuilder())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Task manifest (YAML or JSON)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace (defaults to the manifest's, then \"default\")")
	cmd.Flags().StringVar(&kwargs, "kwargs", "{}", "JSON arguments")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id (generated when empty)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}

// renderJob turns a Task manifest into the YAML of the Job an invocation
// would create.
func renderJob(manifest []byte, namespace string, req domain.InvokeRequest, b jobspec.Builder) ([]byte, error) {
	var task domain.Task
	if err := yaml.Unmarshal(manifest, &task); err != nil {
		return nil, domain.Invalidf("parse task manifest: %v", err)
	}
	if task.Kind != "" && task.Kind != "Task" {
		return nil, domain.Invalidf("expected kind Task, got %s", task.Kind)
	}
	task.Default()
	if err := task.Spec.Validate(); err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = task.Namespace
	}
	if namespace == "" {
		namespace = "default"
	}
	m, err := b.Build(task, req, namespace)
	if err != nil {
		return nil, err
	}
	obj, err := m.Object()
	if err != nil {
		return nil, domain.Serialization(err)
	}
	return yaml.Marshal(obj.Object)
}

func parseKwargs(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, domain.Invalidf("--kwargs must be JSON: %v", err)
	}
	return v, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newClient() *tasklinesdk.Client {
	c := tasklinesdk.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	return c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
