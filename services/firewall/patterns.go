package firewall

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// hiddenTextPattern matches zero-width and invisible control characters used
// to smuggle instructions past human review.
var hiddenTextPattern = regexp.MustCompile("[\u200B-\u200D\uFEFF]")

// defaultInjectionPatterns is the built-in set of known injection and
// jailbreak phrases. Heuristics, not exhaustive.
var defaultInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)system\s+override`),
	regexp.MustCompile(`(?i)debug\s+mode`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+unrestricted`),
	regexp.MustCompile(`(?i)DAN\s+mode`),
}

type patternFile struct {
	InjectionPatterns []string `yaml:"injection_patterns"`
}

// LoadPatterns returns the built-in injection pattern set, extended with the
// patterns from the given YAML file when path is non-empty.
func LoadPatterns(path string) ([]*regexp.Regexp, error) {
	patterns := append([]*regexp.Regexp(nil), defaultInjectionPatterns...)
	if path == "" {
		return patterns, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	for _, p := range file.InjectionPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid injection pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
