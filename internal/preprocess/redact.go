package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// Redactor removes sensitive values from text while preserving correlation
// between identical values.
//
// The same value always becomes the same placeholder, so a reader can still
// tell that two files mention the same address or patient e-mail without
// seeing it. A Redactor is safe for concurrent use.
type Redactor struct {
	enabled  bool
	patterns []RedactionPattern
	hashMap  map[string]string // normalized value -> placeholder
	mu       sync.RWMutex      // Protects hashMap
}

// NewRedactor creates a new Redactor with the specified configuration.
// If enabled is false, Redact() will return text unchanged.
func NewRedactor(enabled bool, patternNames []string) *Redactor {
	patterns := GetPatterns(patternNames)
	if len(patterns) == 0 {
		patterns = GetPatterns(DefaultPatterns())
	}

	return &Redactor{
		enabled:  enabled,
		patterns: patterns,
		hashMap:  make(map[string]string),
	}
}

// Redact scans the text for sensitive patterns and replaces them with
// correlation-preserving placeholders.
//
// Example:
//
//	"Referred by dr.smith@clinic.org" → "Referred by [EMAIL:5c1e]"
//	"cc: DR.SMITH@clinic.org"          → "cc: [EMAIL:5c1e]"
func (r *Redactor) Redact(text string) string {
	if !r.enabled || len(r.patterns) == 0 {
		return text
	}

	result := text

	// Apply each pattern
	for _, pattern := range r.patterns {
		result = r.redactPattern(result, pattern)
	}

	return result
}

// redactPattern applies a single redaction pattern to the text.
func (r *Redactor) redactPattern(text string, pattern RedactionPattern) string {
	return pattern.Regex.ReplaceAllStringFunc(text, func(match string) string {
		return r.getPlaceholder(match, pattern.Type)
	})
}

// getPlaceholder returns the placeholder for a given value.
// The same value always produces the same placeholder, enabling correlation.
func (r *Redactor) getPlaceholder(value, patternType string) string {
	key := NormalizeValue(value, patternType)

	r.mu.RLock()
	if placeholder, ok := r.hashMap[key]; ok {
		r.mu.RUnlock()
		return placeholder
	}
	r.mu.RUnlock()

	placeholder := fmt.Sprintf("[%s:%s]", patternType, r.hashValue(key))

	r.mu.Lock()
	r.hashMap[key] = placeholder
	r.mu.Unlock()

	return placeholder
}

// hashValue generates a short, deterministic hash for a value.
// Uses first 4 hex characters of SHA256 for readability.
func (r *Redactor) hashValue(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:2]) // First 2 bytes = 4 hex chars
}

// IsEnabled returns whether redaction is enabled.
func (r *Redactor) IsEnabled() bool {
	return r.enabled
}

// RedactAndCount redacts text and returns the count of replacements made.
// This is useful for metrics and logging.
func (r *Redactor) RedactAndCount(text string) (string, int) {
	if !r.enabled || len(r.patterns) == 0 {
		return text, 0
	}

	count := 0
	result := text

	for _, pattern := range r.patterns {
		matches := pattern.Regex.FindAllString(result, -1)
		count += len(matches)
		result = r.redactPattern(result, pattern)
	}

	return result, count
}

// NormalizeValue normalizes a value for consistent hashing.
// This handles variations like case differences in email addresses.
func NormalizeValue(value, patternType string) string {
	switch patternType {
	case "EMAIL":
		// Emails are case-insensitive for the domain part
		parts := strings.Split(value, "@")
		if len(parts) == 2 {
			return strings.ToLower(parts[0]) + "@" + strings.ToLower(parts[1])
		}
		return strings.ToLower(value)
	case "IPV4", "IPV6":
		// Normalize IP formatting
		return strings.ToLower(value)
	default:
		return value
	}
}
