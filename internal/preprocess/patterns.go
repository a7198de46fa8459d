package preprocess

import (
	"regexp"
	"sort"
)

// RedactionPattern is a named detector for one kind of sensitive value.
// Type becomes the placeholder prefix: [EMAIL:5c1e], [MRN:09ab].
type RedactionPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Type        string
	Description string
}

const ipv4Octet = `(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`

// BuiltInPatterns holds every pattern selectable by name from
// redaction.patterns or a manifest's redact options.
var BuiltInPatterns = map[string]RedactionPattern{
	// Labelled patient identifiers. The label is replaced with the value.
	"mrn": {
		Regex:       regexp.MustCompile(`(?i)\b(?:mrn|medical record (?:number|no\.?)|patient id)\s*[#:=]?\s*[A-Z0-9][A-Z0-9-]{3,}\b`),
		Type:        "MRN",
		Description: "Medical record numbers and patient IDs",
	},
	"dob": {
		Regex:       regexp.MustCompile(`(?i)\b(?:dob|date of birth|birth ?date)\s*[:=]?\s*\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}\b`),
		Type:        "DOB",
		Description: "Labelled dates of birth",
	},
	"ssn": {
		Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Type:        "SSN",
		Description: "US social security numbers",
	},
	"email": {
		Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		Type:        "EMAIL",
		Description: "Email addresses",
	},
	"phone": {
		Regex:       regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]\d{4}\b`),
		Type:        "PHONE",
		Description: "Phone numbers",
	},

	// Network identifiers of the acquiring equipment.
	"ipv4": {
		Regex:       regexp.MustCompile(`\b` + ipv4Octet + `\.` + ipv4Octet + `\.` + ipv4Octet + `\.` + ipv4Octet + `\b`),
		Type:        "IPV4",
		Description: "IPv4 addresses",
	},
	"ipv6": {
		Regex:       regexp.MustCompile(`(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}|(?:[0-9a-fA-F]{1,4}:){1,7}:|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}|(?:[0-9a-fA-F]{1,4}:){1,5}(?::[0-9a-fA-F]{1,4}){1,2}|(?:[0-9a-fA-F]{1,4}:){1,4}(?::[0-9a-fA-F]{1,4}){1,3}|(?:[0-9a-fA-F]{1,4}:){1,3}(?::[0-9a-fA-F]{1,4}){1,4}|(?:[0-9a-fA-F]{1,4}:){1,2}(?::[0-9a-fA-F]{1,4}){1,5}|[0-9a-fA-F]{1,4}:(?::[0-9a-fA-F]{1,4}){1,6}|:(?::[0-9a-fA-F]{1,4}){1,7}|::(?:[fF]{4}(?::0{1,4}){0,1}:){0,1}(?:` + ipv4Octet + `\.){3}` + ipv4Octet + `|(?:[0-9a-fA-F]{1,4}:){1,4}:(?:` + ipv4Octet + `\.){3}` + ipv4Octet),
		Type:        "IPV6",
		Description: "IPv6 addresses",
	},
	"mac_address": {
		Regex:       regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:-]){5}(?:[0-9A-Fa-f]{2})\b`),
		Type:        "MAC",
		Description: "MAC addresses",
	},

	// Credentials leaked into exports and diagnostic output.
	"api_key": {
		Regex:       regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|token|secret|password|passwd|pwd)["\s]*[:=]["\s]*[a-zA-Z0-9_\-]{8,}`),
		Type:        "SECRET",
		Description: "API keys and tokens",
	},
	"aws_key": {
		Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		Type:        "AWS_KEY",
		Description: "AWS access key IDs",
	},
	"jwt": {
		Regex:       regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*\b`),
		Type:        "JWT",
		Description: "JWT tokens",
	},
	"private_key": {
		Regex:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		Type:        "PRIVATE_KEY",
		Description: "Private key headers",
	},

	"credit_card": {
		Regex:       regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		Type:        "CC",
		Description: "Credit card numbers",
	},
	"uuid": {
		Regex:       regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
		Type:        "UUID",
		Description: "UUIDs",
	},
}

func init() {
	for name, p := range BuiltInPatterns {
		p.Name = name
		BuiltInPatterns[name] = p
	}
}

// DefaultPatterns returns the patterns enabled when none are configured, in
// application order. Labelled identifiers come first so their digits are
// not claimed by phone or address patterns. MAC, card numbers and UUIDs
// are opt-in.
func DefaultPatterns() []string {
	return []string{
		"mrn",
		"dob",
		"ssn",
		"email",
		"phone",
		"ipv4",
		"ipv6",
		"api_key",
		"aws_key",
		"jwt",
		"private_key",
	}
}

// PatternNames lists every built-in pattern name.
func PatternNames() []string {
	names := make([]string, 0, len(BuiltInPatterns))
	for name := range BuiltInPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPatterns returns the named patterns in the order given. Unknown names
// are skipped.
func GetPatterns(names []string) []RedactionPattern {
	patterns := make([]RedactionPattern, 0, len(names))
	for _, name := range names {
		if pattern, ok := BuiltInPatterns[name]; ok {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}
