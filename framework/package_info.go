// Package framework contains the low-level pieces shared by the test system harness: the
// Logger abstraction used throughout, and the subpackages opt, helpers and suite.
//
// The general model is:
//
// 1. A test system is one external test runner process, launched from a command line that is
// resolved from layered page variables (see the testsystems package).
//
// 2. The harness hands pages to the runner and receives output, completion summaries and
// exceptions back from it over a result channel.
//
// 3. The suite package drives a list of pages through a test system and reports the results
// to console and JUnit loggers.
package framework
