package rules

import (
	"regexp"
	"strings"

	"bman/internal/schema"
)

// Outcome is a scenario's rule-classified acceptance outcome, fed into the
// Mangle program as the second argument of accepted_outcome/2.
type Outcome string

const (
	OutcomeAccepted     Outcome = "accepted"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Matches reports whether every predicate present on r holds against res.
// An absent field is not checked, per semantics.json's documented contract
// (schema.Rule doc comment) — this is a plain conjunction, no negation or
// disjunction, so evaluating it in Go rather than compiling it to Datalog
// loses nothing: the part that genuinely benefits from relational
// evaluation (many scenarios to one surface id) lives in the Mangle program
// in engine.go.
func Matches(r schema.Rule, res *schema.ScenarioResult) bool {
	if res == nil {
		return false
	}
	if r.ExitCode != nil && res.ExitCode != *r.ExitCode {
		return false
	}
	if r.ExitSignal != nil && res.ExitSignal != *r.ExitSignal {
		return false
	}
	for _, needle := range r.StdoutContains {
		if !strings.Contains(res.Stdout, needle) {
			return false
		}
	}
	for _, needle := range r.StderrContains {
		if !strings.Contains(res.Stderr, needle) {
			return false
		}
	}
	for _, pat := range r.StdoutRegex {
		if !regexMatches(pat, res.Stdout) {
			return false
		}
	}
	for _, pat := range r.StderrRegex {
		if !regexMatches(pat, res.Stderr) {
			return false
		}
	}
	return true
}

func regexMatches(pattern, text string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// Classify applies rejected rules before accepted rules, matching spec.md
// §4.8's "rejected overrides when a rejection rule matches": a scenario
// result that happens to satisfy both an accepted and a rejected rule is
// rejected, never accepted.
func Classify(sem *schema.Semantics, res *schema.ScenarioResult) Outcome {
	if sem == nil || res == nil {
		return OutcomeInconclusive
	}
	for _, r := range sem.Verification.Rejected {
		if Matches(r, res) {
			return OutcomeRejected
		}
	}
	for _, r := range sem.Verification.Accepted {
		if Matches(r, res) {
			return OutcomeAccepted
		}
	}
	return OutcomeInconclusive
}
