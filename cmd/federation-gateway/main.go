package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/n9te9/federation-gateway/internal/config"
	"github.com/n9te9/federation-gateway/internal/executor"
	"github.com/n9te9/federation-gateway/internal/executor/grpctransport"
	"github.com/n9te9/federation-gateway/internal/gatewayhttp"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/planner"
	"github.com/n9te9/federation-gateway/internal/registry"
	"github.com/n9te9/federation-gateway/internal/supergraph"
	"github.com/n9te9/federation-gateway/internal/telemetry"
)

const gatewayVersion = "v0.2.0"

const starterConfig = `endpoint: /graphql
service_name: federation-gateway
port: 8080
timeout_duration: 5s
planning_timeout: 2s
supergraph_file: supergraph.graphql
opentelemetry:
  tracing:
    enable: false
`

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Federation Gateway",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Federation Gateway " + gatewayVersion)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Federation Gateway project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		return os.WriteFile(configPath, []byte(starterConfig), 0o644)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Federation Gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var composeCmd = &cobra.Command{
	Use:   "compose [supergraph.graphql]",
	Short: "Validate a composed supergraph SDL without starting the gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sdl, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		sg, err := supergraph.Build(sdl)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d types, %d subgraphs, %d resolvers\n", len(sg.Types), len(sg.Subgraphs), len(sg.Resolvers))
		return nil
	},
}

var registryPort int

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Start the schema registry service",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		reg.Start()
		log.Printf("starting schema registry on port %d", registryPort)
		return http.ListenAndServe(fmt.Sprintf(":%d", registryPort), reg)
	},
}

var planVariables string

var planCmd = &cobra.Command{
	Use:   "plan [supergraph.graphql] [operation.graphql]",
	Short: "Dry-run the planner against an operation and print the step DAG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0], args[1])
	},
}

func runPlan(supergraphPath, operationPath string) error {
	sdl, err := os.ReadFile(supergraphPath)
	if err != nil {
		return err
	}
	sg, err := supergraph.Build(sdl)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(operationPath)
	if err != nil {
		return err
	}
	doc, err := operation.ParseDocument(src)
	if err != nil {
		return err
	}

	var variables map[string]any
	if planVariables != "" {
		if err := json.Unmarshal([]byte(planVariables), &variables); err != nil {
			return fmt.Errorf("parsing --variables: %w", err)
		}
	}

	art, err := planner.New(sg).Plan(context.Background(), doc, "", variables, "")
	if err != nil {
		return err
	}

	for _, step := range art.Plan.Steps {
		query, _, err := executor.BuildStepQuery(art, step, []map[string]any{{"__typename": "_"}})
		if err != nil {
			return err
		}
		fmt.Printf("step %d (%s, subgraph %s, depends on %v):\n%s\n\n",
			step.ID, step.Kind, sg.Subgraph(step.Subgraph).Name, step.DependsOn, query)
	}
	return nil
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load gateway settings: %w", err)
	}

	sdl, err := os.ReadFile(settings.SupergraphFile)
	if err != nil {
		return fmt.Errorf("failed to read supergraph SDL: %w", err)
	}
	sg, err := supergraph.Build(sdl)
	if err != nil {
		return fmt.Errorf("failed to build supergraph: %w", err)
	}

	timeout, err := settings.Timeout()
	if err != nil {
		return fmt.Errorf("failed to parse timeout duration: %w", err)
	}
	planningTimeout, err := settings.PlanningDeadline()
	if err != nil {
		return fmt.Errorf("failed to parse planning timeout: %w", err)
	}
	headerRules, err := settings.CompileHeaderRules()
	if err != nil {
		return fmt.Errorf("failed to compile header rules: %w", err)
	}

	tracing := settings.Opentelemetry.Tracing.Enable

	httpOpts := []executor.HTTPOption{}
	if tracing {
		httpOpts = append(httpOpts, executor.WithTracing())
	}
	grpcTransport := grpctransport.New(grpctransport.WithRPCTimeout(timeout))
	defer grpcTransport.Close()

	exec := executor.New(
		executor.NewHTTPTransport(timeout, httpOpts...),
		executor.WithTransport(supergraph.TransportGRPC, grpcTransport),
		executor.WithHeaderRules(headerRules),
	)

	gwOpts := []gatewayhttp.Option{
		gatewayhttp.WithPlanningTimeout(planningTimeout),
		gatewayhttp.WithLogger(logger),
	}
	if tracing {
		gwOpts = append(gwOpts, gatewayhttp.WithTracing(settings.ServiceName))
	}
	gw := gatewayhttp.New(sg, planner.New(sg), exec, gwOpts...)

	mux := http.NewServeMux()
	mux.Handle(settings.Endpoint, gw.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.Port),
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer := func(context.Context) error { return nil }
	if tracing {
		shutdownTracer, err = telemetry.InitTracer(ctx, settings.ServiceName, gatewayVersion, settings.Opentelemetry.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	go func() {
		log.Printf("starting gateway server on port %d", settings.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	log.Println("shutting down gateway server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown gateway server: %w", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer: %w", err)
	}
	log.Println("gateway server stopped")
	return nil
}

func main() {
	rootCmd := cobra.Command{Use: "federation-gateway"}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gateway.yaml", "path to the gateway settings file")
	planCmd.Flags().StringVar(&planVariables, "variables", "", "operation variables as a JSON object")
	registryCmd.Flags().IntVar(&registryPort, "port", 8081, "registry listen port")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(registryCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
