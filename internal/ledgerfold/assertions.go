package ledgerfold

import (
	"regexp"
	"strings"

	"bman/internal/schema"
)

// assertionOutcome is one evaluated assertion's verdict plus whether it
// counts as a delta-proof or a stable semantic predicate, per spec.md §4.8's
// three-part behavior-verified requirement.
type assertionOutcome struct {
	passed       bool
	isDelta      bool
	isSemantic   bool
	unrecognized bool
}

// evaluateAssertion interprets one pack-authored assertion token against a
// baseline/variant evidence pair. Tokens are "kind" or "kind:argument"; the
// vocabulary here (outputs_differ, outputs_equal, seed_path_added,
// seed_path_removed, stdout_contains, stderr_contains, stdout_regex) is the
// full set this function accepts; there is no exit_code token. An
// unrecognized token never silently passes.
func evaluateAssertion(token string, baseline, variant *schema.ScenarioResult, norm schema.Normalization) assertionOutcome {
	kind, arg, _ := strings.Cut(token, ":")
	seedMatch := baseline.SeedSignature == variant.SeedSignature
	switch kind {
	case "outputs_differ":
		differ := normalize(variant.Stdout, norm) != normalize(baseline.Stdout, norm) ||
			normalize(variant.Stderr, norm) != normalize(baseline.Stderr, norm)
		return assertionOutcome{passed: differ, isDelta: differ, isSemantic: differ}
	case "outputs_equal":
		equal := normalize(variant.Stdout, norm) == normalize(baseline.Stdout, norm) &&
			normalize(variant.Stderr, norm) == normalize(baseline.Stderr, norm)
		return assertionOutcome{passed: equal}
	case "seed_path_added":
		ok := fileCheckHolds(baseline, arg, false) && fileCheckHolds(variant, arg, true)
		// spec.md §3/§4.8: baseline and variant must share a seed signature
		// to credit a seed-path assertion as a delta-proof/semantic
		// predicate — otherwise the filesystem change may be an artifact of
		// differing seeds, not of the variant's argv.
		return assertionOutcome{passed: ok, isDelta: ok && seedMatch, isSemantic: ok && seedMatch}
	case "seed_path_removed":
		ok := fileCheckHolds(baseline, arg, true) && fileCheckHolds(variant, arg, false)
		return assertionOutcome{passed: ok, isDelta: ok && seedMatch, isSemantic: ok && seedMatch}
	case "stdout_contains":
		ok := strings.Contains(variant.Stdout, arg)
		return assertionOutcome{passed: ok, isSemantic: ok}
	case "stderr_contains":
		ok := strings.Contains(variant.Stderr, arg)
		return assertionOutcome{passed: ok, isSemantic: ok}
	case "stdout_regex":
		ok := regexMatches(arg, variant.Stdout)
		return assertionOutcome{passed: ok, isSemantic: ok}
	default:
		return assertionOutcome{passed: false, unrecognized: true}
	}
}

// fileCheckHolds reports whether variant/baseline asserted "file_exists" (or
// "file_missing" when want is false) for path and it held.
func fileCheckHolds(res *schema.ScenarioResult, path string, wantExists bool) bool {
	for _, fc := range res.FilesChecked {
		if fc.Path != path {
			continue
		}
		if wantExists {
			return fc.Kind == "file_exists" && fc.Holds
		}
		return fc.Kind == "file_missing" && fc.Holds
	}
	return false
}

func normalize(s string, norm schema.Normalization) string {
	if norm.StripANSI {
		s = stripANSI(s)
	}
	if norm.NormalizeWhitespace {
		s = collapseWhitespace(s)
	}
	return s
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func regexMatches(pattern, text string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
