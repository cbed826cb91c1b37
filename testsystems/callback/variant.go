// Package callback provides a test system variant in which the runner talks back to the
// harness over HTTP.
//
// The runner is launched with the callback base URL as its last argument (and in the
// FITNESSE_CALLBACK_URL environment variable). It reads pages from a server-sent event
// stream and posts its results back:
//
//	HEAD /                      readiness
//	GET  /pages                 event stream: "page" events, then "bye"
//	POST /pages/{id}/output     HTML output for the page, as plain text
//	POST /pages/{id}/complete   JSON summary of the page
//	POST /exceptions            JSON {"message": "..."} for a failure outside any page
//
// Pages that have not been completed are replayed to every new subscriber, so a runner that
// reconnects should ignore page ids it has already seen.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/helpers"
	"github.com/fitnesse/test-system-harness/testsystems"
	"github.com/fitnesse/test-system-harness/testsystems/process"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kballard/go-shellquote"
	"github.com/launchdarkly/eventsource"
)

const (
	// CallbackURLVariable is the environment variable that tells the runner where the harness is.
	CallbackURLVariable = "FITNESSE_CALLBACK_URL"

	// FastTestVariable is set to "true" in the runner's environment in fast-test mode.
	FastTestVariable = "FITNESSE_FAST_TEST"

	PageEventName = "page"
	ByeEventName  = "bye"

	pagesChannel = "pages"
	maxBodySize  = 16 * 1024 * 1024
)

// PageMessage is the data of a "page" event.
type PageMessage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExceptionMessage is the body of a POST to /exceptions.
type ExceptionMessage struct {
	Message string `json:"message"`
}

type Option helpers.ConfigOption[Variant]

// Host sets the name the runner should use to reach the harness, which is also the address
// the harness listens on. The default is "localhost".
func Host(host string) Option {
	return helpers.ConfigOptionFunc[Variant](func(v *Variant) error {
		v.host = host
		return nil
	})
}

// Port sets the port to listen on. The default of zero picks any free port.
func Port(port int) Option {
	return helpers.ConfigOptionFunc[Variant](func(v *Variant) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		v.port = port
		return nil
	})
}

// WithLauncher replaces the default launcher, which runs the command as a child process.
func WithLauncher(launcher process.Launcher) Option {
	return helpers.ConfigOptionFunc[Variant](func(v *Variant) error {
		v.launcher = launcher
		return nil
	})
}

// WithLogger sets the logger for the harness side of the conversation. The runner's own
// output goes to the ExecutionLog, not here.
func WithLogger(logger framework.Logger) Option {
	return helpers.ConfigOptionFunc[Variant](func(v *Variant) error {
		v.logger = logger
		return nil
	})
}

type pendingPage struct {
	message   PageMessage
	output    strings.Builder
	completed bool
	done      chan struct{}
}

// Variant is a testsystems.Variant that serves the callback protocol. Each Variant can be
// used for a single TestSystem.
type Variant struct {
	host     string
	port     int
	launcher process.Launcher
	logger   framework.Logger

	spec    testsystems.RunSpec
	events  testsystems.Listener
	log     *testsystems.ExecutionLog
	baseURL string
	streams *eventsource.Server
	server  *http.Server
	proc    process.Process

	pages   map[string]*pendingPage
	order   []string
	byeSent bool
	killed  chan struct{}
	exited  chan struct{}

	closed      bool
	closeOnce   sync.Once
	killOnce    sync.Once
	killErr     error
	lock        sync.Mutex
	publishLock sync.RWMutex
	handlerLock sync.Mutex
}

func New(opts ...Option) (*Variant, error) {
	v := &Variant{
		host:     "localhost",
		launcher: process.ExecLauncher{},
		logger:   framework.NullLogger(),
		pages:    make(map[string]*pendingPage),
		killed:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
	if err := helpers.ApplyOptions(v, opts...); err != nil {
		return nil, err
	}
	if v.logger == nil {
		v.logger = framework.NullLogger()
	}
	return v, nil
}

// BaseURL is the URL the runner calls back to. It is empty until the execution log exists.
func (v *Variant) BaseURL() string {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.baseURL
}

func (v *Variant) CreateExecutionLog(
	spec testsystems.RunSpec,
	events testsystems.Listener,
) (*testsystems.ExecutionLog, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.log != nil {
		return nil, errors.New("callback service is already running")
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(v.host, strconv.Itoa(v.port)))
	if err != nil {
		return nil, fmt.Errorf("could not listen for test runner callbacks: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	v.baseURL = "http://" + net.JoinHostPort(v.host, strconv.Itoa(port))

	v.streams = eventsource.NewServer()
	v.streams.ReplayAll = true
	v.streams.Logger = v.logger
	v.streams.Register(pagesChannel, v)

	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodHead)
	router.HandleFunc("/pages", v.servePages).Methods(http.MethodGet)
	router.HandleFunc("/pages/{id}/output", v.handleOutput).Methods(http.MethodPost)
	router.HandleFunc("/pages/{id}/complete", v.handleComplete).Methods(http.MethodPost)
	router.HandleFunc("/exceptions", v.handleException).Methods(http.MethodPost)

	v.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second, // arbitrary but non-infinite timeout to avoid Slowloris Attack
	}
	go func() {
		if err := v.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			v.logger.Printf("Callback service stopped: %s", err)
		}
	}()

	v.spec = spec
	v.events = events
	v.log = testsystems.NewExecutionLog(v.spec.Command + " " + shellquote.Join(v.baseURL))
	v.logger.Printf("Callback service listening at %s", v.baseURL)
	return v.log, nil
}

func (v *Variant) runnerEnvironment() map[string]string {
	env := make(map[string]string, len(v.spec.Environment)+2)
	for name, value := range v.spec.Environment {
		env[name] = value
	}
	env[CallbackURLVariable] = v.baseURL
	if v.spec.FastTest {
		env[FastTestVariable] = "true"
	}
	return env
}

func (v *Variant) Start(ctx context.Context) error {
	v.lock.Lock()
	if v.log == nil {
		v.lock.Unlock()
		return errors.New("callback service has not been created")
	}
	command := v.log.Command()
	env := v.runnerEnvironment()
	manual := v.spec.ManualStart
	output := v.log.OutputLogger()
	v.lock.Unlock()

	if manual {
		v.logger.Printf("Waiting for the test runner to be started manually: %s", command)
		return nil
	}

	proc, err := v.launcher.Launch(ctx, command, env, output)
	if err != nil {
		return err
	}
	v.lock.Lock()
	v.proc = proc
	v.lock.Unlock()
	go v.monitor(proc)
	return nil
}

func (v *Variant) monitor(proc process.Process) {
	<-proc.Done()
	exitCode := proc.ExitCode()
	if exitCode.IsDefined() {
		v.log.SetExitCode(exitCode.Value())
	}

	v.lock.Lock()
	expected := v.byeSent || helpers.IsClosed(v.killed)
	var pending string
	if page := v.firstIncompletePage(); page != nil {
		pending = page.message.Name
	}
	v.lock.Unlock()

	switch {
	case expected:
		v.logger.Printf("Test runner exited with code %s", exitCode)
	case pending != "":
		v.events.ExceptionOccurred(testsystems.RuntimeFault{
			Message:  fmt.Sprintf("test runner exited while running %s", pending),
			ExitCode: exitCode,
		})
	case exitCode.Value() != 0:
		v.events.ExceptionOccurred(testsystems.RuntimeFault{
			Message:  "test runner exited unexpectedly",
			ExitCode: exitCode,
		})
	default:
		v.logger.Printf("Test runner exited before being told to")
	}
	close(v.exited)
}

// RunTests publishes the page and waits for the runner to complete it. If the runner exits or
// is killed first, whatever output it sent for the page is returned.
func (v *Variant) RunTests(ctx context.Context, data testsystems.PageData) (string, error) {
	page := &pendingPage{
		message: PageMessage{ID: uuid.NewString(), Name: data.Name, Content: data.Content},
		done:    make(chan struct{}),
	}
	v.lock.Lock()
	if v.streams == nil || v.closed {
		v.lock.Unlock()
		return "", fmt.Errorf("%w: callback service is not running", testsystems.ErrInvalidState)
	}
	v.pages[page.message.ID] = page
	v.order = append(v.order, page.message.ID)
	v.lock.Unlock()

	v.logger.Printf("Sending page %s as %s", data.Name, page.message.ID)
	v.publish(pageEvent(page.message))

	var err error
	select {
	case <-page.done:
	case <-v.exited:
	case <-v.killed:
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", testsystems.ErrInterruptedShutdown, ctx.Err())
	}

	v.lock.Lock()
	defer v.lock.Unlock()
	v.removePage(page.message.ID)
	return page.output.String(), err
}

// Bye tells the runner there are no more pages and waits for it to exit.
func (v *Variant) Bye(ctx context.Context) error {
	v.lock.Lock()
	v.byeSent = true
	proc := v.proc
	v.lock.Unlock()

	v.logger.Printf("Sending bye to test runner")
	v.publish(byeEvent{})

	if proc == nil {
		v.closeService()
		return nil
	}
	select {
	case <-v.exited:
		v.closeService()
		return nil
	case <-v.killed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", testsystems.ErrInterruptedShutdown, ctx.Err())
	}
}

func (v *Variant) Kill() error {
	v.killOnce.Do(func() {
		v.lock.Lock()
		close(v.killed)
		proc := v.proc
		v.lock.Unlock()
		if proc != nil {
			v.killErr = proc.Kill()
		}
		v.closeService()
	})
	return v.killErr
}

func (v *Variant) closeService() {
	v.closeOnce.Do(func() {
		v.publishLock.Lock()
		v.lock.Lock()
		v.closed = true
		streams, server := v.streams, v.server
		v.lock.Unlock()
		v.publishLock.Unlock()

		if streams != nil {
			streams.Close()
		}
		if server != nil {
			_ = server.Close()
		}
	})
}

func (v *Variant) publish(event eventsource.Event) {
	v.publishLock.RLock()
	defer v.publishLock.RUnlock()
	v.lock.Lock()
	closed, streams := v.closed, v.streams
	v.lock.Unlock()
	if !closed && streams != nil {
		streams.Publish([]string{pagesChannel}, event)
	}
}

// Replay sends every page the runner has not completed yet, so that a runner that connects
// late, or reconnects, does not miss any.
func (v *Variant) Replay(channel, id string) chan eventsource.Event {
	v.lock.Lock()
	defer v.lock.Unlock()
	events := make(chan eventsource.Event, len(v.order)+1)
	for _, pageID := range v.order {
		if page := v.pages[pageID]; !page.completed {
			events <- pageEvent(page.message)
		}
	}
	if v.byeSent {
		events <- byeEvent{}
	}
	close(events)
	return events
}

// firstIncompletePage must be called with the lock held.
func (v *Variant) firstIncompletePage() *pendingPage {
	for _, id := range v.order {
		if page := v.pages[id]; !page.completed {
			return page
		}
	}
	return nil
}

// removePage must be called with the lock held.
func (v *Variant) removePage(id string) {
	delete(v.pages, id)
	for i, pageID := range v.order {
		if pageID == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

func (v *Variant) servePages(w http.ResponseWriter, r *http.Request) {
	v.logger.Printf("Test runner subscribed to pages")
	v.streams.Handler(pagesChannel)(w, r)
	v.logger.Printf("End of page stream request")
}

func (v *Variant) activePage(w http.ResponseWriter, r *http.Request) *pendingPage {
	id := mux.Vars(r)["id"]
	v.lock.Lock()
	page := v.pages[id]
	completed := page != nil && page.completed
	v.lock.Unlock()
	switch {
	case page == nil:
		v.logger.Printf("Received %s for unknown page %s", r.URL.Path, id)
		w.WriteHeader(http.StatusNotFound)
		return nil
	case completed:
		v.logger.Printf("Received %s for page %s, which was already complete", r.URL.Path, id)
		w.WriteHeader(http.StatusConflict)
		return nil
	}
	return page
}

func (v *Variant) handleOutput(w http.ResponseWriter, r *http.Request) {
	v.handlerLock.Lock()
	defer v.handlerLock.Unlock()

	page := v.activePage(w, r)
	if page == nil {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	v.lock.Lock()
	page.output.Write(body)
	v.lock.Unlock()

	if err := v.events.AcceptOutputFirst(string(body)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *Variant) handleComplete(w http.ResponseWriter, r *http.Request) {
	v.handlerLock.Lock()
	defer v.handlerLock.Unlock()

	page := v.activePage(w, r)
	if page == nil {
		return
	}
	var summary testsystems.TestSummary
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&summary); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	v.lock.Lock()
	page.completed = true
	v.lock.Unlock()

	v.logger.Printf("Page %s complete: %s", page.message.Name, summary)
	err := v.events.TestComplete(summary)
	close(page.done)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *Variant) handleException(w http.ResponseWriter, r *http.Request) {
	v.handlerLock.Lock()
	defer v.handlerLock.Unlock()

	var message ExceptionMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&message); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	v.events.ExceptionOccurred(testsystems.RuntimeFault{Message: message.Message})
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("content-type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(err.Error()))
}

type pageEvent PageMessage

func (e pageEvent) Event() string { return PageEventName }
func (e pageEvent) Id() string    { return e.ID } //nolint:stylecheck
func (e pageEvent) Data() string {
	bytes, _ := json.Marshal(PageMessage(e))
	return string(bytes)
}

type byeEvent struct{}

func (byeEvent) Event() string { return ByeEventName }
func (byeEvent) Id() string    { return "" } //nolint:stylecheck
func (byeEvent) Data() string  { return "{}" }

var _ testsystems.Variant = (*Variant)(nil)
