package governance

import "regexp"

// RedactionRule names a pattern/replacement pair, configured alongside a
// Policy to scrub sensitive text out of the step log lines user code writes
// through the log() helper. Error messages and stacks are not redacted.
type RedactionRule struct {
	Pattern string
	Replace string
}

// CompiledRedaction is a pre-compiled RedactionRule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileRedactionRules compiles a policy's redaction rules.
func CompileRedactionRules(rules []RedactionRule) ([]*CompiledRedaction, error) {
	var compiled []*CompiledRedaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, &CompiledRedaction{Pattern: re, Replace: r.Replace})
	}
	return compiled, nil
}

// RedactOutput applies every compiled rule to output, used on text passed
// to the log() helper before it is appended to step.Log.
func RedactOutput(output string, rules []*CompiledRedaction) string {
	result := output
	for _, r := range rules {
		result = r.Pattern.ReplaceAllString(result, r.Replace)
	}
	return result
}
