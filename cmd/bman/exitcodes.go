package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"bman/internal/schema"
	"bman/internal/txn"
)

// incompleteError wraps a next-action recommendation that stopped apply (or
// plan) from reaching decision=complete within this invocation. It is never
// a bug report — it's the CLI's way of surfacing schema.NextAction through
// the exit-code contract for scripts that don't parse stdout.
type incompleteError struct {
	next schema.NextAction
}

func (e *incompleteError) Error() string {
	if e.next.Reason == "" {
		return "incomplete"
	}
	return fmt.Sprintf("incomplete: %s", e.next.Reason)
}

// exitCodeFor maps an error to the CLI's three non-zero exit codes
// (spec.md §7): configuration/input errors surface as *schema.Error (1),
// commit-time staleness surfaces as *txn.IntegrityError (3), and everything
// else — including incompleteError — bubbles up as a next-action
// recommendation (2).
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var se *schema.Error
	if errors.As(err, &se) {
		return 1
	}
	var ie *txn.IntegrityError
	if errors.As(err, &ie) {
		return 3
	}
	return 2
}

// errorJSON renders err as the structured stderr payload the exit-code
// contract promises, so a caller that only inspects exit status still has a
// machine-readable line to fall back on.
func errorJSON(code int, err error) string {
	payload := struct {
		Error string `json:"error"`
		Exit  int    `json:"exit_code"`
	}{Error: err.Error(), Exit: code}
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Sprintf(`{"error":%q,"exit_code":%d}`, err.Error(), code)
	}
	return string(data)
}
