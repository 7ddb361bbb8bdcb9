package acquisitions

import (
	"fmt"
	"regexp"
)

var deaNumberRe = regexp.MustCompile(`^[A-Z]{2}[0-9]{7}$`)

// ValidateDEANumber checks the registrant number format and its check digit.
// The seventh digit must equal the last digit of
// (d1+d3+d5) + 2*(d2+d4+d6).
func ValidateDEANumber(value string) error {
	if !deaNumberRe.MatchString(value) {
		return fmt.Errorf("DEA number %q must be two letters followed by seven digits", value)
	}

	digits := value[2:]
	odd := int(digits[0]-'0') + int(digits[2]-'0') + int(digits[4]-'0')
	even := int(digits[1]-'0') + int(digits[3]-'0') + int(digits[5]-'0')
	check := (odd + 2*even) % 10
	if check != int(digits[6]-'0') {
		return fmt.Errorf("DEA number %q has an invalid check digit", value)
	}
	return nil
}
