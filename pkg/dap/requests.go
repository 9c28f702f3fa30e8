package dap

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	"github.com/ganezdragon/perl-language-server/pkg/debugger"
)

const notBreakableMessage = "Perl cannot set breakpoint here"

func (s *Session) onSetBreakpoints(request *dap.SetBreakpointsRequest) {
	path := request.Arguments.Source.Path

	s.bpMu.Lock()
	previous := s.breakpoints[path]
	s.bpMu.Unlock()

	if s.driver != nil && len(previous) > 0 {
		lines := make([]int, 0, len(previous))
		for _, record := range previous {
			lines = append(lines, record.line)
		}
		if err := s.driver.DeleteBreakpoints(lines); err != nil {
			s.log.Warn("breakpoint delete failed", "path", path, "err", err)
		}
	}

	requested := request.Arguments.Breakpoints
	records := make([]breakpointRecord, 0, len(requested))
	results := make([]dap.Breakpoint, 0, len(requested))
	for _, sb := range requested {
		record := breakpointRecord{line: sb.Line, condition: sb.Condition}
		result := dap.Breakpoint{Line: sb.Line, Verified: true}
		if s.driver != nil {
			reply, err := s.driver.SetBreakpoint(path, sb.Line, sb.Condition)
			if err != nil || strings.Contains(reply, "not breakable") {
				result.Verified = false
				result.Message = notBreakableMessage
			}
		}
		if result.Verified {
			records = append(records, record)
		}
		results = append(results, result)
	}

	s.bpMu.Lock()
	s.breakpoints[path] = records
	s.bpMu.Unlock()

	resp := &dap.SetBreakpointsResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.SetBreakpointsResponseBody{Breakpoints: results}
	s.send(resp)
}

func (s *Session) onSetFunctionBreakpoints(request *dap.SetFunctionBreakpointsRequest) {
	results := make([]dap.Breakpoint, 0, len(request.Arguments.Breakpoints))
	for _, fb := range request.Arguments.Breakpoints {
		verified := false
		if s.driver != nil {
			reply, err := s.driver.SetBreakpoint(fb.Name, 0, fb.Condition)
			verified = err == nil && !strings.Contains(reply, "not breakable")
		}
		results = append(results, dap.Breakpoint{Verified: verified})
	}
	resp := &dap.SetFunctionBreakpointsResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.SetFunctionBreakpointsResponseBody{Breakpoints: results}
	s.send(resp)
}

func (s *Session) onBreakpointLocations(request *dap.BreakpointLocationsRequest) {
	resp := &dap.BreakpointLocationsResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.BreakpointLocationsResponseBody{
		Breakpoints: []dap.BreakpointLocation{{Line: request.Arguments.Line}},
	}
	s.send(resp)
}

func (s *Session) onThreads(request *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.ThreadsResponseBody{
		Threads: []dap.Thread{{Id: mainThreadID, Name: "main thread"}},
	}
	s.send(resp)
}

// hasBreakpointAt reports whether the file has a recorded breakpoint on the
// line.
func (s *Session) hasBreakpointAt(file string, line int) bool {
	s.bpMu.Lock()
	defer s.bpMu.Unlock()
	for _, record := range s.breakpoints[file] {
		if record.line == line {
			return true
		}
	}
	return false
}

func (s *Session) onStackTrace(request *dap.StackTraceRequest) {
	resp := &dap.StackTraceResponse{Response: s.newResponse(request.Request)}
	// Delayed loading is advertised but pages beyond the first are not
	// served; the first page always carries every frame.
	if s.driver == nil || request.Arguments.StartFrame > 0 {
		resp.Body = dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{}}
		s.send(resp)
		return
	}

	frames := s.currentFrames()

	// Stop-on-entry heuristic: the first stack trace after launch resumes
	// silently when the user did not ask to stop and the entry line holds
	// no breakpoint.
	if !s.passedStopOnEntry {
		s.passedStopOnEntry = true
		if !s.launchArgs.StopOnEntry && len(frames) > 0 &&
			!s.hasBreakpointAt(frames[0].CallerFile, frames[0].Line) {
			if _, err := s.driver.ContinueSilently(); err == nil {
				frames = s.currentFrames()
			}
		}
	}

	stackFrames := make([]dap.StackFrame, 0, len(frames))
	for i, frame := range frames {
		stackFrames = append(stackFrames, dap.StackFrame{
			Id:     i + 1,
			Name:   fmt.Sprintf(":(%s) %s", frame.Context, frame.Callee),
			Source: &dap.Source{Name: filepath.Base(frame.CallerFile), Path: frame.CallerFile},
			Line:   frame.Line,
			Column: 1,
		})
	}
	resp.Body = dap.StackTraceResponseBody{
		StackFrames: stackFrames,
		TotalFrames: len(stackFrames),
	}
	s.send(resp)
}

func (s *Session) currentFrames() []debugger.StackFrame {
	reply, err := s.driver.Trace()
	if err != nil {
		return nil
	}
	return debugger.ParseStackTrace(reply)
}

func (s *Session) onScopes(request *dap.ScopesRequest) {
	resp := &dap.ScopesResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.ScopesResponseBody{
		Scopes: []dap.Scope{
			{
				Name:               "Locals & Closure",
				VariablesReference: s.handles.mint(variableHandle{kind: handleLocals}),
				Expensive:          false,
			},
			{
				Name:               "Globals",
				VariablesReference: s.handles.mint(variableHandle{kind: handleGlobals}),
				Expensive:          true,
			},
		},
	}
	s.send(resp)
}

func (s *Session) onVariables(request *dap.VariablesRequest) {
	resp := &dap.VariablesResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.VariablesResponseBody{Variables: s.resolveVariables(request.Arguments.VariablesReference)}
	s.send(resp)
}

// resolveVariables dereferences a handle. A handle invalidated by a resume
// yields an empty list, never an error.
func (s *Session) resolveVariables(ref int) []dap.Variable {
	handle, ok := s.handles.get(ref)
	if !ok || s.driver == nil {
		return []dap.Variable{}
	}

	switch handle.kind {
	case handleLocals:
		reply, err := s.driver.LocalScopedVariables()
		if err != nil {
			return []dap.Variable{}
		}
		entries := debugger.SplitVariableEntries(reply)
		s.localsMu.Lock()
		s.lastLocals = entries
		s.localsMu.Unlock()
		return s.prettifyEntries(entries)
	case handleGlobals:
		reply, err := s.driver.GlobalScopedVariables()
		if err != nil {
			return []dap.Variable{}
		}
		return s.prettifyEntries(debugger.SplitVariableEntries(reply))
	default:
		return s.expandNested(handle)
	}
}

func (s *Session) expandNested(handle variableHandle) []dap.Variable {
	switch handle.valueKind {
	case debugger.ValueArray:
		values := debugger.ParseArrayDump(handle.raw)
		variables := make([]dap.Variable, 0, len(values))
		for i, value := range values {
			variables = append(variables, s.prettifyValue(strconv.Itoa(i), value))
		}
		return variables
	case debugger.ValueHash:
		fields := debugger.ParseHashDump(handle.raw)
		variables := make([]dap.Variable, 0, len(fields))
		for _, field := range fields {
			variables = append(variables, s.prettifyValue(field.Key, field.Value))
		}
		return variables
	case debugger.ValueScalar:
		value := debugger.DereferenceScalar(handle.raw)
		return []dap.Variable{s.prettifyValue("->", value)}
	}
	return []dap.Variable{}
}

// prettifyEntries renders scope entries: container-valued scalars get a
// fresh nested handle, arrays get a length-prefixed value.
func (s *Session) prettifyEntries(entries []debugger.VariableEntry) []dap.Variable {
	variables := make([]dap.Variable, 0, len(entries))
	for _, entry := range entries {
		variables = append(variables, s.prettifyEntry(entry))
	}
	return variables
}

func (s *Session) prettifyEntry(entry debugger.VariableEntry) dap.Variable {
	value := entry.Value
	sigil := byte(0)
	if len(entry.Name) > 0 {
		sigil = entry.Name[0]
	}
	trimmed := strings.TrimSpace(value)

	if sigil == '@' && strings.HasPrefix(trimmed, "(") {
		length := len(debugger.ParseArrayDump(value))
		return dap.Variable{
			Name:               entry.Name,
			Value:              fmt.Sprintf("[%d] %s", length, value),
			VariablesReference: s.handles.mint(variableHandle{kind: handleNested, valueKind: debugger.ValueArray, raw: value}),
		}
	}
	if sigil == '%' && strings.HasPrefix(trimmed, "(") {
		return dap.Variable{
			Name:               entry.Name,
			Value:              value,
			VariablesReference: s.handles.mint(variableHandle{kind: handleNested, valueKind: debugger.ValueHash, raw: value}),
		}
	}
	return s.prettifyValue(entry.Name, value)
}

func (s *Session) prettifyValue(name, value string) dap.Variable {
	variable := dap.Variable{Name: name, Value: value}
	if kind := debugger.ClassifyValue(value); kind != debugger.ValueLeaf {
		variable.VariablesReference = s.handles.mint(variableHandle{
			kind:      handleNested,
			valueKind: kind,
			raw:       value,
		})
	}
	return variable
}

func (s *Session) onSetVariable(request *dap.SetVariableRequest) {
	resp := &dap.SetVariableResponse{Response: s.newResponse(request.Request)}
	if s.driver != nil {
		if _, err := s.driver.Evaluate(request.Arguments.Name + " = " + request.Arguments.Value); err != nil {
			s.sendError(request.Request, 1003, err.Error())
			return
		}
	}
	resp.Body = dap.SetVariableResponseBody{Value: request.Arguments.Value}
	s.send(resp)
}

func (s *Session) onSetExpression(request *dap.SetExpressionRequest) {
	resp := &dap.SetExpressionResponse{Response: s.newResponse(request.Request)}
	if s.driver != nil {
		if _, err := s.driver.Evaluate(request.Arguments.Expression + " = " + request.Arguments.Value); err != nil {
			s.sendError(request.Request, 1003, err.Error())
			return
		}
	}
	resp.Body = dap.SetExpressionResponseBody{Value: request.Arguments.Value}
	s.send(resp)
}

func (s *Session) onEvaluate(request *dap.EvaluateRequest) {
	resp := &dap.EvaluateResponse{Response: s.newResponse(request.Request)}
	if s.driver == nil {
		resp.Body = dap.EvaluateResponseBody{Result: ""}
		s.send(resp)
		return
	}

	expr := request.Arguments.Expression
	reply, err := s.driver.Evaluate(expr)
	if err != nil {
		s.sendError(request.Request, 1004, err.Error())
		return
	}
	value := debugger.ParseEvaluateResult(expr, reply)

	ref := 0
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		ref = s.handles.mint(variableHandle{kind: handleNested, valueKind: debugger.ValueArray, raw: value})
	} else if kind := debugger.ClassifyValue(value); kind != debugger.ValueLeaf {
		ref = s.handles.mint(variableHandle{kind: handleNested, valueKind: kind, raw: value})
	}

	resp.Body = dap.EvaluateResponseBody{Result: value, VariablesReference: ref}
	s.send(resp)
}

func (s *Session) onCompletions(request *dap.CompletionsRequest) {
	word := strings.TrimSpace(request.Arguments.Text)
	s.localsMu.Lock()
	entries := append([]debugger.VariableEntry(nil), s.lastLocals...)
	s.localsMu.Unlock()

	targets := make([]dap.CompletionItem, 0, len(entries))
	for _, entry := range entries {
		if word == "" || strings.Contains(entry.Name, word) {
			targets = append(targets, dap.CompletionItem{Label: entry.Name})
		}
	}
	resp := &dap.CompletionsResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.CompletionsResponseBody{Targets: targets}
	s.send(resp)
}

func (s *Session) onExceptionInfo(request *dap.ExceptionInfoRequest) {
	// Advertised for client compatibility; die tracking has no backing
	// implementation yet.
	resp := &dap.ExceptionInfoResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.ExceptionInfoResponseBody{
		ExceptionId: "die",
		Description: "Uncaught Exception",
		BreakMode:   "always",
	}
	s.send(resp)
}

// requireDriver rejects movement requests that arrive before launch.
func (s *Session) requireDriver(req dap.Request) bool {
	if s.driver == nil {
		s.sendError(req, 1006, "no debuggee")
		return false
	}
	return true
}

func (s *Session) onContinue(request *dap.ContinueRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	resp := &dap.ContinueResponse{Response: s.newResponse(request.Request)}
	resp.Body = dap.ContinueResponseBody{AllThreadsContinued: true}
	s.send(resp)
	go func() {
		if _, err := s.driver.Continue(); err != nil {
			s.log.Debug("continue ended", "err", err)
		}
	}()
}

func (s *Session) onNext(request *dap.NextRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	s.send(&dap.NextResponse{Response: s.newResponse(request.Request)})
	go func() {
		if _, err := s.driver.Next(); err != nil {
			s.log.Debug("next ended", "err", err)
		}
	}()
}

func (s *Session) onStepIn(request *dap.StepInRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	s.send(&dap.StepInResponse{Response: s.newResponse(request.Request)})
	go func() {
		if _, err := s.driver.SingleStep(); err != nil {
			s.log.Debug("step ended", "err", err)
		}
	}()
}

func (s *Session) onStepOut(request *dap.StepOutRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	s.send(&dap.StepOutResponse{Response: s.newResponse(request.Request)})
	go func() {
		if _, err := s.driver.StepOut(); err != nil {
			s.log.Debug("step out ended", "err", err)
		}
	}()
}

func (s *Session) onRestart(request *dap.RestartRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	s.send(&dap.RestartResponse{Response: s.newResponse(request.Request)})
	go func() {
		if _, err := s.driver.Restart(); err != nil {
			s.log.Debug("restart ended", "err", err)
		}
	}()
}

func (s *Session) onPause(request *dap.PauseRequest) {
	if !s.requireDriver(request.Request) {
		return
	}
	if err := s.driver.Pause(); err != nil {
		s.sendError(request.Request, 1005, err.Error())
		return
	}
	s.send(&dap.PauseResponse{Response: s.newResponse(request.Request)})
}
