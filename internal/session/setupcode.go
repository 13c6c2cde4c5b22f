package session

import (
	"fmt"
	"regexp"
	"strings"
)

var setupCodePattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{3}$`)

// ValidateSetupCode checks that code is a well-formed 8-digit HAP setup
// code in "XXX-XX-XXX" format and rejects the three digit sequences
// the HAP specification calls out as unsuitable (spec.md §4.5): all
// digits equal, fully ascending ("01234567" wrapping the hyphens), or
// fully descending.
func ValidateSetupCode(code string) error {
	if !setupCodePattern.MatchString(code) {
		return fmt.Errorf("session: setup code %q is not in XXX-XX-XXX format", code)
	}
	digits := strings.ReplaceAll(code, "-", "")

	allEqual := true
	ascending := true
	descending := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allEqual = false
		}
		if digits[i] != digits[i-1]+1 {
			ascending = false
		}
		if digits[i] != digits[i-1]-1 {
			descending = false
		}
	}
	if allEqual {
		return fmt.Errorf("session: setup code %q has all-equal digits", code)
	}
	if ascending {
		return fmt.Errorf("session: setup code %q is fully ascending", code)
	}
	if descending {
		return fmt.Errorf("session: setup code %q is fully descending", code)
	}
	return nil
}
