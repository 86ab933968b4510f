package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastNonEmptyLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"line1\nline2\nReal cause", "Real cause"},
		{"Traceback:\n  File x\nValueError: bad date\n\n  \n", "ValueError: bad date"},
		{"single", "single"},
		{"windows\r\nline\r\n", "line"},
		{"", ""},
		{"\n\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LastNonEmptyLine(tt.in))
	}
}

func TestFailureMessage(t *testing.T) {
	multi := Status{Status: "failed", Error: "line1\nline2\nReal cause"}

	assert.Equal(t, "Real cause", FailureMessage(multi, LastLine))
	assert.Equal(t, "line1\nline2\nReal cause", FailureMessage(multi, Verbatim))
	assert.Equal(t, GenericFailureMessage, FailureMessage(Status{Status: "failed"}, Verbatim))
	assert.Equal(t, GenericFailureMessage, FailureMessage(Status{Error: " \n "}, LastLine))
}

func TestErrorFormatString(t *testing.T) {
	assert.Equal(t, "verbatim", Verbatim.String())
	assert.Equal(t, "last-line", LastLine.String())
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Bank sync job expired or was removed", ExpiredMessage("Bank sync"))
	assert.Contains(t, LostMessage("Bulk delete", errors.New("connection refused")), "connection refused")
	assert.Contains(t, TimeoutMessage("Bank sync"), "stopped tracking")

	progress := 40.0
	assert.Equal(t, "Bank sync…", StageMessage("Bank sync", nil))
	assert.Equal(t, "Bank sync: fetching", StageMessage("Bank sync", &Meta{Stage: "fetching"}))
	assert.Equal(t, "Bank sync: fetching (40%)", StageMessage("Bank sync", &Meta{Stage: "fetching", Progress: &progress}))
}
