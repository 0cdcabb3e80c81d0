package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/fixturert"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/otel"
	"github.com/hanpama/gqlplan/internal/planner"
	"github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/server"
)

const rootUsage = `gqlplan - GraphQL operation planner and fixture server

USAGE:
  gqlplan <command> [flags]

COMMANDS:
  serve            Serve a schema over HTTP, resolving fields from a JSON fixture
  plan             Print the execution plan of an operation
  help             Show help for any command

Flags can also be set with GQLPLAN_* environment variables, for example
GQLPLAN_SERVER_ADDR for -server.addr. A .env file in the working directory
is loaded first.
`

const serveUsage = `serve FLAGS:
  -schema <file>                  GraphQL SDL file (required)
  -fixture <file>                 JSON fixture document (required)
  -server.addr <addr>             HTTP listen address (default: :8080)
  -server.pretty                  Pretty-print JSON responses
  -server.graphiql                Serve GraphiQL to browsers (default: true)
  -server.timeout <duration>      Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>        Maximum request body size (default: 1048576)
  -server.cors <origin>           Allowed CORS origin. Repeatable
  -server.metadata-header <name>  Forward HTTP header to gRPC metadata. Repeatable
  -plan.cache-size <n>            Number of prepared plans kept (default: 1024)
  -plan.internal <Type.field>     Always resolve a field as an internal selection. Repeatable
  -plan.allow-internal            Include internal selections in responses
  -otel.endpoint <addr>           OTLP collector endpoint
  -otel.service <name>            OpenTelemetry service name (default: gqlplan)
  -log.dev                        Human-readable debug logging
`

const planUsage = `plan FLAGS:
  -schema <file>               GraphQL SDL file (required)
  -query <file>                Query document; "-" reads stdin (default: -)
  -operation <name>            Operation to plan when the document has several
  -plan.internal <Type.field>  Add an internal selection. Repeatable
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "plan":
		return cmdPlan(cmdArgs, stdin, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "plan":
		fmt.Fprint(stdout, planUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

// internalFieldsFlag collects Type.field pairs.
type internalFieldsFlag map[string][]string

func (f internalFieldsFlag) String() string { return "" }

func (f internalFieldsFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		typeName, field, ok := strings.Cut(strings.TrimSpace(part), ".")
		if !ok || typeName == "" || field == "" {
			return fmt.Errorf("invalid internal field %q, want Type.field", part)
		}
		f[typeName] = append(f[typeName], field)
	}
	return nil
}

// envName maps a flag name to its environment variable.
func envName(flagName string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return "GQLPLAN_" + strings.ToUpper(r.Replace(flagName))
}

// parseFlags applies environment defaults and then the command line.
func parseFlags(set *flag.FlagSet, args []string) error {
	var envErr error
	set.VisitAll(func(f *flag.Flag) {
		if v, ok := os.LookupEnv(envName(f.Name)); ok && envErr == nil {
			if err := set.Set(f.Name, v); err != nil {
				envErr = fmt.Errorf("%s: %w", envName(f.Name), err)
			}
		}
	})
	if envErr != nil {
		return envErr
	}
	return set.Parse(args)
}

func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return nil, fmt.Errorf("-schema is required")
	}
	sdl, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sch, err := schema.BuildFromSDL(string(sdl))
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func cmdServe(args []string, stderr io.Writer) error {
	schemaFile := ""
	fixtureFile := ""
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(1 << 20)
	cacheSize := planner.DefaultCacheSize
	allowInternal := false
	otelEndpoint := ""
	otelService := "gqlplan"
	devLog := false
	graphiql := true
	var corsOrigins, metadataHeaders stringListFlag
	internal := internalFieldsFlag{}

	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	fset.SetOutput(new(bytes.Buffer))
	fset.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL file")
	fset.StringVar(&fixtureFile, "fixture", fixtureFile, "JSON fixture document")
	fset.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fset.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fset.BoolVar(&graphiql, "server.graphiql", graphiql, "Serve GraphiQL to browsers")
	fset.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fset.Int64Var(&maxBody, "server.max-body", maxBody, "Maximum request body size")
	fset.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fset.Var(&metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fset.IntVar(&cacheSize, "plan.cache-size", cacheSize, "Number of prepared plans kept")
	fset.Var(internal, "plan.internal", "Internal selection Type.field")
	fset.BoolVar(&allowInternal, "plan.allow-internal", allowInternal, "Include internal selections in responses")
	fset.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fset.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	fset.BoolVar(&devLog, "log.dev", devLog, "Human-readable debug logging")
	if err := parseFlags(fset, args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	if fixtureFile == "" {
		fmt.Fprint(stderr, serveUsage)
		return fmt.Errorf("-fixture is required")
	}

	logger, err := newLogger(devLog)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sch, err := loadSchema(schemaFile)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	rt, err := fixturert.Load(fixtureFile, fixturert.WithLogger(logger.Named("fixture")))
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}

	eventbus.Use(eventbus.New())
	shutdownTracing, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	eopts := []executor.Option{
		executor.WithLogger(logger.Named("executor")),
		executor.WithPlanCacheSize(cacheSize),
		executor.WithAllowInternal(allowInternal),
	}
	for typeName, fields := range internal {
		eopts = append(eopts, executor.WithInternalFields(typeName, fields...))
	}
	exec := executor.NewExecutor(rt, sch, eopts...)

	sopts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithMaxBodyBytes(maxBody),
		server.WithGraphiQL(graphiql),
	}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	if len(metadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(metadataHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(exec, sopts...))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cmdPlan(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	schemaFile := ""
	queryFile := "-"
	operation := ""
	internal := internalFieldsFlag{}

	fset := flag.NewFlagSet("plan", flag.ContinueOnError)
	fset.SetOutput(new(bytes.Buffer))
	fset.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL file")
	fset.StringVar(&queryFile, "query", queryFile, "Query document")
	fset.StringVar(&operation, "operation", operation, "Operation name")
	fset.Var(internal, "plan.internal", "Internal selection Type.field")
	if err := parseFlags(fset, args); err != nil {
		fmt.Fprint(stderr, planUsage)
		return err
	}

	sch, err := loadSchema(schemaFile)
	if err != nil {
		fmt.Fprint(stderr, planUsage)
		return err
	}
	var query []byte
	if queryFile == "-" {
		query, err = io.ReadAll(stdin)
	} else {
		query, err = os.ReadFile(queryFile)
	}
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}

	doc, err := language.ValidateQuery(sch.AST, string(query))
	if err != nil {
		return err
	}
	var copts []planner.Option
	for typeName, fields := range internal {
		copts = append(copts, planner.WithInternalFields(typeName, fields...))
	}
	plan, err := planner.NewCompiler(sch, nil, copts...).Compile(doc, operation)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, planner.Render(plan))
	return err
}
