package dap

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/ganezdragon/perl-language-server/pkg/debugger"
)

const (
	mainThreadID = 1

	// configurationDone may never arrive; launch proceeds after this wait.
	configurationDoneTimeout = time.Second

	errNoProgram = 1001
)

// launchArguments is the launch request payload.
type launchArguments struct {
	Program     string            `json:"program"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Args        string            `json:"args,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
	Trace       bool              `json:"trace,omitempty"`
}

type breakpointRecord struct {
	line      int
	condition string
}

// Session serves one DAP connection.
type Session struct {
	log    *slog.Logger
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  io.Writer
	seq     int

	driver     *debugger.Driver
	launchArgs launchArguments

	configured     chan struct{}
	configuredOnce sync.Once

	bpMu        sync.Mutex
	breakpoints map[string][]breakpointRecord

	handles *handleTable

	localsMu   sync.Mutex
	lastLocals []debugger.VariableEntry

	passedStopOnEntry bool
}

func NewSession(r io.Reader, w io.Writer, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:         log,
		reader:      bufio.NewReader(r),
		writer:      w,
		configured:  make(chan struct{}),
		breakpoints: make(map[string][]breakpointRecord),
		handles:     newHandleTable(),
	}
}

// Serve reads protocol messages until the client disconnects.
func (s *Session) Serve() error {
	for {
		msg, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if done := s.dispatch(msg); done {
			return nil
		}
	}
}

func (s *Session) send(msg dap.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(s.writer, msg); err != nil {
		s.log.Warn("write failed", "err", err)
	}
}

func (s *Session) nextSeq() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.seq++
	return s.seq
}

func (s *Session) newResponse(req dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (s *Session) newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (s *Session) sendError(req dap.Request, id int, format string) {
	resp := s.newResponse(req)
	resp.Success = false
	resp.Message = format
	s.send(&dap.ErrorResponse{
		Response: resp,
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Id: id, Format: format},
		},
	})
}

func (s *Session) dispatch(msg dap.Message) bool {
	switch request := msg.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(request)
	case *dap.ConfigurationDoneRequest:
		s.configuredOnce.Do(func() { close(s.configured) })
		s.send(&dap.ConfigurationDoneResponse{Response: s.newResponse(request.Request)})
	case *dap.LaunchRequest:
		s.onLaunch(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(request)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpoints(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.send(&dap.SetExceptionBreakpointsResponse{Response: s.newResponse(request.Request)})
	case *dap.BreakpointLocationsRequest:
		s.onBreakpointLocations(request)
	case *dap.ThreadsRequest:
		s.onThreads(request)
	case *dap.StackTraceRequest:
		s.onStackTrace(request)
	case *dap.ScopesRequest:
		s.onScopes(request)
	case *dap.VariablesRequest:
		s.onVariables(request)
	case *dap.SetVariableRequest:
		s.onSetVariable(request)
	case *dap.SetExpressionRequest:
		s.onSetExpression(request)
	case *dap.EvaluateRequest:
		s.onEvaluate(request)
	case *dap.CompletionsRequest:
		s.onCompletions(request)
	case *dap.ExceptionInfoRequest:
		s.onExceptionInfo(request)
	case *dap.ContinueRequest:
		s.onContinue(request)
	case *dap.NextRequest:
		s.onNext(request)
	case *dap.StepInRequest:
		s.onStepIn(request)
	case *dap.StepOutRequest:
		s.onStepOut(request)
	case *dap.RestartRequest:
		s.onRestart(request)
	case *dap.PauseRequest:
		s.onPause(request)
	case *dap.DisconnectRequest:
		s.onShutdown(request.Request)
		return true
	case *dap.TerminateRequest:
		s.onShutdown(request.Request)
		return true
	default:
		if req, ok := msg.(dap.RequestMessage); ok {
			s.sendError(*req.GetRequest(), 9999, "unsupported request")
		}
	}
	return false
}

func (s *Session) onInitialize(request *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest:   true,
		SupportsEvaluateForHovers:          true,
		SupportsConditionalBreakpoints:     true,
		SupportsLogPoints:                  true,
		SupportsCompletionsRequest:         true,
		CompletionTriggerCharacters:        []string{".", ":", "$", "%", "@"},
		SupportsBreakpointLocationsRequest: true,
		SupportsFunctionBreakpoints:        true,
		SupportsStepInTargetsRequest:       false,
		SupportsExceptionInfoRequest:       true,
		SupportsSetVariable:                true,
		SupportsSetExpression:              true,
		SupportsDisassembleRequest:         true,
		SupportsSteppingGranularity:        true,
		SupportsInstructionBreakpoints:     true,
		SupportsReadMemoryRequest:          true,
		SupportsWriteMemoryRequest:         true,
		SupportSuspendDebuggee:             true,
		SupportTerminateDebuggee:           true,
		SupportsDelayedStackTraceLoading:   true,
		SupportsTerminateRequest:           true,
		ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
			{Filter: "die", Label: "Uncaught Exception"},
		},
	}
	// The Initialized event is deliberately withheld until launch.
	s.send(resp)
}

func (s *Session) onLaunch(request *dap.LaunchRequest) {
	var args launchArguments
	if err := json.Unmarshal(request.Arguments, &args); err != nil || strings.TrimSpace(args.Program) == "" {
		s.sendError(request.Request, errNoProgram, "No program specified to debug.")
		return
	}
	s.launchArgs = args

	select {
	case <-s.configured:
	case <-time.After(configurationDoneTimeout):
	}

	driver, err := debugger.Spawn(debugger.SpawnOptions{
		Program: args.Program,
		Args:    strings.Fields(args.Args),
		Cwd:     args.Cwd,
		Env:     args.Env,
	}, debugger.Events{
		Stopped: func(reason string) {
			event := &dap.StoppedEvent{Event: s.newEvent("stopped")}
			event.Body = dap.StoppedEventBody{
				Reason:            reason,
				ThreadId:          mainThreadID,
				AllThreadsStopped: true,
			}
			s.send(event)
		},
		Continued: func() {
			s.handles.invalidate()
			s.localsMu.Lock()
			s.lastLocals = nil
			s.localsMu.Unlock()
			event := &dap.ContinuedEvent{Event: s.newEvent("continued")}
			event.Body = dap.ContinuedEventBody{
				ThreadId:            mainThreadID,
				AllThreadsContinued: true,
			}
			s.send(event)
		},
		Paused: func() {
			event := &dap.StoppedEvent{Event: s.newEvent("stopped")}
			event.Body = dap.StoppedEventBody{
				Reason:            "pause",
				ThreadId:          mainThreadID,
				AllThreadsStopped: true,
			}
			s.send(event)
		},
		Terminated: func(exitCode int) {
			terminated := &dap.TerminatedEvent{Event: s.newEvent("terminated")}
			s.send(terminated)
			exited := &dap.ExitedEvent{Event: s.newEvent("exited")}
			exited.Body = dap.ExitedEventBody{ExitCode: exitCode}
			s.send(exited)
		},
		Output: func(text string) {
			event := &dap.OutputEvent{Event: s.newEvent("output")}
			event.Body = dap.OutputEventBody{Category: "stdout", Output: text}
			s.send(event)
		},
	}, s.log)
	if err != nil {
		s.sendError(request.Request, 1002, err.Error())
		return
	}
	s.driver = driver

	if err := driver.AutoFlushStdOut(); err != nil {
		s.log.Warn("autoflush failed", "err", err)
	}

	s.send(&dap.LaunchResponse{Response: s.newResponse(request.Request)})
	s.send(&dap.InitializedEvent{Event: s.newEvent("initialized")})
}

func (s *Session) onShutdown(req dap.Request) {
	if s.driver != nil {
		if err := s.driver.Kill(); err != nil {
			s.log.Debug("kill failed", "err", err)
		}
	}
	resp := s.newResponse(req)
	s.send(&resp)
}
