package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fitnesse/test-system-harness/framework/suite"
)

type stringList []string

func (l stringList) String() string { return strings.Join(l, ",") }

// Set is called by the command line parser
func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type commandParams struct {
	varsFile     string
	pages        stringList
	paths        stringList
	remoteDebug  bool
	manualStart  bool
	fastTest     bool
	host         string
	port         int
	envPrefix    string
	consulPrefix string
	redisAddr    string
	redisKey     string
	filters      suite.RegexFilters
	jUnitFile    string
	logFile      string
	debug        bool
	debugAll     bool
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.varsFile, "vars", "", "YAML or JSON file of page variables")
	fs.Var(&c.pages, "page", "page file to run; may be repeated")
	fs.Var(&c.paths, "path", "classpath entry for the test runner; may be repeated")
	fs.BoolVar(&c.remoteDebug, "remote-debug", false, "launch the runner with its remote debugging command")
	fs.BoolVar(&c.manualStart, "manual-start", false, "do not launch the runner; wait for it to be started by hand")
	fs.BoolVar(&c.fastTest, "fast", false, "ask the runner to run in fast-test mode")
	fs.StringVar(&c.host, "host", "localhost", "hostname the test runner uses to call back to the harness")
	fs.IntVar(&c.port, "port", 0, "port that the harness will listen on for callbacks (0 for any)")
	fs.StringVar(&c.envPrefix, "env-prefix", "FITNESSE_", "prefix of environment variables that define page variables")
	fs.StringVar(&c.consulPrefix, "consul-prefix", "", "read page variables from this Consul KV prefix")
	fs.StringVar(&c.redisAddr, "redis-addr", "", "address of a Redis server to read page variables from")
	fs.StringVar(&c.redisKey, "redis-key", "fitnesse", "Redis hash that holds the page variables")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select pages to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select pages not to run")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&c.logFile, "log-file", "", "write the execution log as JSON to the specified path")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging, and show runner output for failed pages")
	fs.BoolVar(&c.debugAll, "debug-all", false, "like -debug, but show runner output for all pages")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	c.pages = append(c.pages, fs.Args()...)
	if len(c.pages) == 0 {
		fmt.Fprintln(os.Stderr, "at least one -page is required")
		fs.Usage()
		return false
	}
	return true
}
