package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bimmerbailey/sift/internal/processor"
)

func TestProgress_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)

	p.File("a.dcm", processor.Outcome{Status: processor.StatusTransformed})
	p.File("c.dcm", processor.Outcome{Status: processor.StatusRejected, Reason: "policy"})
	p.File("d.dcm", processor.Outcome{Status: processor.StatusErrored, Reason: "corrupt"})
	p.File("b.txt", processor.Outcome{Status: processor.StatusUnmatched})

	want := "✔ a.dcm\n" +
		"⊘ c.dcm (rejected: policy)\n" +
		"✖ d.dcm (error: corrupt)\n" +
		"- b.txt (skipped)\n"
	assert.Equal(t, want, buf.String())
}

func TestProgress_Styled(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)

	p.File("a.dcm", processor.Outcome{Status: processor.StatusTransformed})
	p.File("c.dcm", processor.Outcome{Status: processor.StatusRejected, Reason: "policy"})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "✔")
	assert.Contains(t, lines[0], "a.dcm")
	assert.Contains(t, lines[1], "rejected: policy")
}
