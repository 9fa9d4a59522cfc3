package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriter(&buf)
	n.Notify(context.Background(), "Bionic reading enabled")
	n.Notify(context.Background(), "Bionic reading disabled")
	assert.Equal(t, "Bionic reading enabled\nBionic reading disabled\n", buf.String())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	n := Log{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	n.Notify(context.Background(), "Bionic reading enabled")
	assert.Contains(t, buf.String(), `"msg":"notification"`)
	assert.Contains(t, buf.String(), `"message":"Bionic reading enabled"`)
}
