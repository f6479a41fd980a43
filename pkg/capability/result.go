package capability

// Result is what every capability returns to the model. Failures are data,
// not Go errors, so the model can read and react to them.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Command string `json:"command,omitempty"`
}

// OK builds a successful result.
func OK(output any, command string) Result {
	return Result{Success: true, Output: output, Command: command}
}

// Fail builds a failed result.
func Fail(msg, command string) Result {
	return Result{Success: false, Error: msg, Command: command}
}

// Map renders the result as a function-response payload. Map outputs are
// merged into the top level, so structured results keep their own keys.
func (r Result) Map() map[string]any {
	out := map[string]any{"success": r.Success}
	switch o := r.Output.(type) {
	case nil:
	case map[string]any:
		for k, v := range o {
			out[k] = v
		}
	default:
		out["output"] = o
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Command != "" {
		out["command"] = r.Command
	}
	return out
}
