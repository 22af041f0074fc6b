package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string]map[string]bool{
	"salesforce": {
		"client_id": true, "client_secret": true, "username": true, "password": true,
		"security_token": true, "access_token": true, "instance_url": true,
		"sandbox": true, "login_url": true, "api_version": true,
	},
	"logging": {"log_level": true, "log_format": true},
	"network": {"request_timeout": true, "user_agent": true},
	"session": {"file": true, "persist": true, "watch": true},
}

// sortedKeys returns m's keys sorted, for deterministic suggestions when two
// candidates have the same edit distance.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

var knownSectionsList = sortedKeys(knownKeys)

var knownKeysList = func() map[string][]string {
	lists := make(map[string][]string, len(knownKeys))
	for section, keys := range knownKeys {
		lists[section] = sortedKeys(keys)
	}

	return lists
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := buildKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key. Keys in unknown sections are
// reported once per section; keys at the top level are matched against
// section names, since every setting lives in a section.
func buildKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, sectionKnown := knownKeys[section]
	if !sectionKnown {
		if suggestion := closestMatch(section, knownSectionsList); suggestion != "" {
			return fmt.Errorf("unknown config section or key %q, did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config section or key %q", section)
	}

	if len(key) < 2 || keys[key[1]] {
		return nil
	}

	field := key[1]

	if suggestion := closestMatch(field, knownKeysList[section]); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
