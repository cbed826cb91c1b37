package main

import (
	"context"
	_ "embed" // this is required in order for go:embed to work
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fitnesse/test-system-harness/config"
	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/suite"
	"github.com/fitnesse/test-system-harness/testsystems"
	"github.com/fitnesse/test-system-harness/testsystems/callback"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const byeTimeout = time.Second * 10

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("test-system-harness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	results, err := run(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !results.OK() {
		os.Exit(1)
	}
}

func run(params commandParams) (*suite.Results, error) {
	mainDebugLogger := framework.NullLogger()
	if params.debug || params.debugAll {
		loggers := ldlog.NewDefaultLoggers()
		loggers.SetMinLevel(ldlog.Debug)
		mainDebugLogger = loggers.ForLevel(ldlog.Debug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vars, err := loadVariables(ctx, params, mainDebugLogger)
	if err != nil {
		return nil, err
	}
	mainDebugLogger.Printf("Page variables: %v", config.Snapshot(vars, config.KnownNames()...))
	pages, err := loadPages(params.pages)
	if err != nil {
		return nil, err
	}

	descriptor := testsystems.NewDescriptor(vars, params.remoteDebug, testsystems.DefaultSettings())
	classpath := descriptor.JoinClasspath(params.paths...)
	fmt.Printf("Test system: %s\n", descriptor.TestSystemName())

	var resultLogger suite.ResultLogger = suite.ConsoleLogger{
		OutputOnFailure: params.debug || params.debugAll,
		OutputOnSuccess: params.debugAll,
	}
	var jUnitLogger *suite.JUnitLogger
	if params.jUnitFile != "" {
		jUnitLogger = suite.NewJUnitLogger(params.jUnitFile, map[string]string{
			"testSystem":     descriptor.TestSystemName(),
			"commandPattern": descriptor.CommandPattern(),
		}, params.filters)
		resultLogger = suite.MultiResultLogger{resultLogger, jUnitLogger}
	}
	suite.PrintFilterDescription(params.filters)
	runner := suite.NewRunner(params.filters, resultLogger)

	variant, err := callback.New(
		callback.Host(params.host),
		callback.Port(params.port),
		callback.WithLogger(mainDebugLogger),
	)
	if err != nil {
		return nil, err
	}
	ts := testsystems.NewTestSystem(vars, runner, variant, mainDebugLogger)
	ts.SetFastTest(params.fastTest)
	ts.SetManualStart(params.manualStart)

	executionLog, err := ts.ExecutionLog(classpath, descriptor)
	if err != nil {
		return nil, err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Interrupted; killing test system")
			_ = ts.Kill()
		case <-finished:
		}
	}()

	var results suite.Results
	if err := ts.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		results = runner.Run(ctx, ts, pages)
		shutDown(ts)
	}
	fmt.Println()
	suite.PrintResults(results)

	for _, fault := range runner.Faults() {
		fmt.Fprintf(os.Stderr, "Test system fault: %s\n", fault)
	}
	for _, reason := range executionLog.Reasons() {
		fmt.Fprintln(os.Stderr, reason)
	}

	var endErrs []error
	if jUnitLogger != nil {
		fmt.Printf("Writing JUnit data to %s\n", params.jUnitFile)
		if err := jUnitLogger.EndLog(); err != nil {
			endErrs = append(endErrs, fmt.Errorf("error writing JUnit log: %w", err))
		}
	}
	if params.logFile != "" {
		if err := writeExecutionLog(params.logFile, executionLog); err != nil {
			endErrs = append(endErrs, err)
		}
	}
	if len(endErrs) != 0 {
		return nil, errors.Join(endErrs...)
	}

	if !ts.IsSuccessfullyStarted() || len(runner.Faults()) != 0 {
		return nil, errors.New("test system did not run to completion")
	}
	return &results, nil
}

func shutDown(ts *testsystems.TestSystem) {
	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	if err := ts.Bye(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Test system did not shut down cleanly (%s); killing it\n", err)
		_ = ts.Kill()
	}
}

// loadVariables builds the variable lookup: the -vars file wins, then Consul, then Redis, then
// the environment.
func loadVariables(ctx context.Context, params commandParams, logger framework.Logger) (config.Layered, error) {
	var layers config.Layered
	if params.varsFile != "" {
		vars, err := config.LoadFile(params.varsFile)
		if err != nil {
			return nil, err
		}
		logger.Printf("Loaded %d variables from %s", len(vars), params.varsFile)
		layers = append(layers, vars)
	}
	if params.consulPrefix != "" {
		kv, err := config.NewConsulKV("")
		if err != nil {
			return nil, err
		}
		vars, err := config.LoadConsul(kv, params.consulPrefix)
		if err != nil {
			return nil, err
		}
		logger.Printf("Loaded %d variables from Consul prefix %s", len(vars), params.consulPrefix)
		layers = append(layers, vars)
	}
	if params.redisAddr != "" {
		client := config.NewRedisClient(params.redisAddr)
		defer client.Close() //nolint:errcheck
		vars, err := config.LoadRedis(ctx, client, params.redisKey)
		if err != nil {
			return nil, err
		}
		logger.Printf("Loaded %d variables from Redis hash %s", len(vars), params.redisKey)
		layers = append(layers, vars)
	}
	return append(layers, config.Environment{Prefix: params.envPrefix}), nil
}

// loadPages reads each page file. The page name is the file name without its extension.
func loadPages(paths []string) ([]testsystems.PageData, error) {
	ret := make([]testsystems.PageData, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read page: %w", err)
		}
		base := filepath.Base(path)
		ret = append(ret, testsystems.PageData{
			Name:    strings.TrimSuffix(base, filepath.Ext(base)),
			Content: string(content),
		})
	}
	return ret, nil
}

func writeExecutionLog(path string, log *testsystems.ExecutionLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialize execution log: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil { //nolint:gosec
		return fmt.Errorf("cannot write execution log: %w", err)
	}
	return nil
}
