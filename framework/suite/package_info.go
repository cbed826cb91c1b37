// Package suite runs a list of pages, one after another, through a test system and reports
// the results to the console or to a JUnit XML file.
package suite
