package revokesessions

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salesforce-workers/internal/common/validation"
)

// InputVariables are the only variables fetched from the process instance.
var InputVariables = []string{"username", "address", "delay", "apiVersion"}

var apiVersionPattern = `^[vV]?[0-9]+(\.[0-9]+)?$`

// GetInputSchema checks variable types. A missing or blank username is reported
// by the service as a missing input, not here.
func GetInputSchema() validation.JSONSchema {
	nullable := func(p validation.Property) validation.Property {
		return validation.Property{OneOf: []validation.Property{p, {Type: "null"}}}
	}

	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"username": nullable(validation.Property{
				Type:        "string",
				Description: "Salesforce username whose non-current sessions are revoked",
				MaxLength:   validation.Int(80),
			}),
			"address": nullable(validation.Property{
				Type:        "string",
				Description: "Salesforce instance URL overriding the configured base URL",
			}),
			"delay": {
				Description: "Wait before revoking: Go or ISO-8601 duration, or seconds",
				OneOf: []validation.Property{
					{Type: "string"},
					{Type: "number", Minimum: validation.Float(0)},
					{Type: "null"},
				},
			},
			"apiVersion": nullable(validation.Property{
				Type:    "string",
				Pattern: &apiVersionPattern,
			}),
		},
	}
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDelay accepts a Go duration ("90s"), an ISO-8601 duration ("PT1M30S"),
// or a number of seconds given as a number or numeric string.
func ParseDelay(v interface{}) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return secondsToDuration(d)
	case int:
		return secondsToDuration(float64(d))
	case int64:
		return secondsToDuration(float64(d))
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return 0, nil
		}
		if dur, err := time.ParseDuration(s); err == nil {
			if dur < 0 {
				return 0, fmt.Errorf("delay must not be negative")
			}
			return dur, nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return secondsToDuration(secs)
		}
		if secs, ok := parseISODuration(strings.ToUpper(s)); ok {
			return secondsToDuration(secs)
		}
		return 0, fmt.Errorf("invalid delay %q", s)
	default:
		return 0, fmt.Errorf("invalid delay type %T", v)
	}
}

func secondsToDuration(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) {
		return 0, fmt.Errorf("invalid delay %v", secs)
	}
	if secs < 0 {
		return 0, fmt.Errorf("delay must not be negative")
	}
	nanos := secs * float64(time.Second)
	if nanos >= math.MaxInt64 {
		return 0, fmt.Errorf("delay of %g seconds is out of range", secs)
	}
	return time.Duration(nanos), nil
}

// parseISODuration returns the total number of seconds in s.
func parseISODuration(s string) (float64, bool) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, false
	}

	units := []float64{24 * 3600, 3600, 60, 1}
	var total float64
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}
