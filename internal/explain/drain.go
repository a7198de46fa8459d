package explain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Wildcard replaces the variable tokens of a template.
const Wildcard = "<*>"

// Extractor clusters messages into templates with the Drain algorithm: a
// fixed-depth parse tree keyed first by token count, then by leading
// tokens, with a similarity check among the templates at each leaf.
// Tokens that differ between merged messages become wildcards.
type Extractor struct {
	mu           sync.Mutex
	root         *node
	depth        int
	simThreshold float64
	maxChildren  int
	templates    []*Template
}

type node struct {
	children  map[string]*node
	templates []*Template
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// Template is one cluster of similar messages.
type Template struct {
	Pattern  string
	Tokens   []string
	Count    int
	Examples []string

	seq int
}

// Defaults for NewExtractor arguments that are out of range.
const (
	DefaultDepth        = 4
	DefaultSimThreshold = 0.5
	DefaultMaxChildren  = 100
	maxExamples         = 3
)

var variablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^-?\d+(\.\d+)?[a-zµ]*$`),
	regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`),
	regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`),
	// Redaction placeholders such as [EMAIL:5c1e].
	regexp.MustCompile(`^\[[A-Z0-9_]+:[0-9a-f]+\]$`),
	// Dotted DICOM tags and UIDs.
	regexp.MustCompile(`^\(?[0-9A-Fa-f]{4},[0-9A-Fa-f]{4}\)?$`),
	regexp.MustCompile(`^\d+(\.\d+){3,}$`),
}

// NewExtractor returns an Extractor. Out-of-range arguments use the
// defaults.
func NewExtractor(depth int, simThreshold float64, maxChildren int) *Extractor {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if simThreshold <= 0 || simThreshold > 1 {
		simThreshold = DefaultSimThreshold
	}
	if maxChildren <= 0 {
		maxChildren = DefaultMaxChildren
	}
	return &Extractor{
		root:         newNode(),
		depth:        depth,
		simThreshold: simThreshold,
		maxChildren:  maxChildren,
	}
}

// Add files message under a template and returns the template's pattern.
// Empty messages are ignored.
func (d *Extractor) Add(message string) string {
	tokens := strings.Fields(message)
	if len(tokens) == 0 {
		return ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.findOrCreate(tokens)
	t.Count++
	if len(t.Examples) < maxExamples {
		t.Examples = append(t.Examples, message)
	}
	return t.Pattern
}

func (d *Extractor) findOrCreate(tokens []string) *Template {
	cur := d.child(d.root, fmt.Sprintf("len_%d", len(tokens)))

	for i := 0; i < len(tokens) && i < d.depth-1; i++ {
		key := tokens[i]
		if isVariable(key) {
			key = Wildcard
		}
		if _, ok := cur.children[key]; !ok && len(cur.children) >= d.maxChildren {
			key = Wildcard
		}
		cur = d.child(cur, key)
	}

	for _, t := range cur.templates {
		if similarity(tokens, t.Tokens) >= d.simThreshold {
			t.Tokens = merge(t.Tokens, tokens)
			t.Pattern = strings.Join(t.Tokens, " ")
			return t
		}
	}

	t := &Template{Tokens: wildcards(tokens), seq: len(d.templates)}
	t.Pattern = strings.Join(t.Tokens, " ")
	cur.templates = append(cur.templates, t)
	d.templates = append(d.templates, t)
	return t
}

func (d *Extractor) child(n *node, key string) *node {
	c, ok := n.children[key]
	if !ok {
		c = newNode()
		n.children[key] = c
	}
	return c
}

// Templates returns copies of the templates, most frequent first. Ties
// keep first-seen order.
func (d *Extractor) Templates() []Template {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Template, len(d.templates))
	for i, t := range d.templates {
		out[i] = *t
		out[i].Tokens = append([]string(nil), t.Tokens...)
		out[i].Examples = append([]string(nil), t.Examples...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Total is the number of messages added.
func (d *Extractor) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.templates {
		n += t.Count
	}
	return n
}

func isVariable(token string) bool {
	token = strings.Trim(token, `"',;:`)
	for _, re := range variablePatterns {
		if re.MatchString(token) {
			return true
		}
	}
	return strings.HasPrefix(token, "/") && len(token) > 20
}

// similarity is the share of positions holding equal tokens or a wildcard.
func similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	maxLen := max(len(a), len(b))
	matches := 0
	for i := range min(len(a), len(b)) {
		if a[i] == Wildcard || b[i] == Wildcard || a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(maxLen)
}

func merge(existing, tokens []string) []string {
	out := make([]string, max(len(existing), len(tokens)))
	for i := range out {
		if i < len(existing) && i < len(tokens) && existing[i] == tokens[i] {
			out[i] = existing[i]
		} else {
			out[i] = Wildcard
		}
	}
	return out
}

func wildcards(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if isVariable(t) {
			out[i] = Wildcard
		} else {
			out[i] = t
		}
	}
	return out
}
