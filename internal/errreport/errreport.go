// Package errreport forwards failures that need operator attention to Rollbar.
package errreport

import (
	"log"

	"github.com/rollbar/rollbar-go"
)

// Reporter records an error with optional context.
type Reporter interface {
	Report(err error, extras map[string]any)
	Close()
}

// New returns a Rollbar-backed reporter, or a log-only one when token is empty.
func New(token, env, codeVersion string) Reporter {
	if token == "" {
		return logOnly{}
	}
	client := rollbar.New(token, env, codeVersion, "", "")
	return &rollbarReporter{client: client}
}

type rollbarReporter struct {
	client *rollbar.Client
}

func (r *rollbarReporter) Report(err error, extras map[string]any) {
	if err == nil {
		return
	}
	log.Printf("errreport: %v %v", err, extras)
	r.client.ErrorWithExtras(rollbar.ERR, err, extras)
}

// Close flushes queued items.
func (r *rollbarReporter) Close() {
	r.client.Close()
}

type logOnly struct{}

func (logOnly) Report(err error, extras map[string]any) {
	if err != nil {
		log.Printf("errreport: %v %v", err, extras)
	}
}

func (logOnly) Close() {}

// Nop discards everything; used by tests.
type Nop struct{}

func (Nop) Report(error, map[string]any) {}
func (Nop) Close()                       {}
