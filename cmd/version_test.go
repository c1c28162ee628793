package cmd

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/nzcve71300/Zentro-Assistant/zentrobot"
	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := zentrobot.Version
	originalCommitSHA := zentrobot.CommitSHA
	originalBuildTime := zentrobot.BuildTime

	t.Cleanup(
		func() {
			zentrobot.Version = originalVersion
			zentrobot.CommitSHA = originalCommitSHA
			zentrobot.BuildTime = originalBuildTime
		},
	)

	zentrobot.Version = "1.0.0"
	zentrobot.CommitSHA = "abc123"
	zentrobot.BuildTime = "2026-08-30T12:00:00Z"

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	t.Cleanup(
		func() {
			os.Stdout = orig
		},
	)

	// Capture the output
	versionCmd.Run(nil, nil)

	_ = w.Close()

	out, _ := io.ReadAll(r)
	output := string(out)
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		zentrobot.Version,
		zentrobot.CommitSHA,
		zentrobot.BuildTime,
	)
	assert.Equal(t, expected, output)
}
