package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	p := Printer{Format: "json", W: buf}

	err := p.Print(map[string]string{"id": "g1"}, func(io.Writer) {
		t.Fatal("text output used in json mode")
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"id": "g1"}, resp.Data)
	assert.Empty(t, resp.Error)
}

func TestPrinter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	p := Printer{Format: "json", W: buf}

	require.NoError(t, p.PrintError([]int{1}, "1 scenario(s) failed", func(io.Writer) {}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "1 scenario(s) failed", resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestPrinter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	p := Printer{Format: "text", W: buf}

	require.NoError(t, p.Print("ignored", func(w io.Writer) {
		fmt.Fprintln(w, "Deleted g1")
	}))
	assert.Equal(t, "Deleted g1\n", buf.String())
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	err := WrapExitError(ExitFailure, "write dump", base)
	assert.Equal(t, "write dump: disk full", err.Error())
	assert.ErrorIs(t, err, base)

	plain := NewExitError(ExitCommandError, "bad flag")
	assert.Equal(t, "bad flag", plain.Error())
	assert.Nil(t, plain.Unwrap())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}
