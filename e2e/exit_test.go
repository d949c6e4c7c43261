//go:build e2e && unix

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplicationExit(t *testing.T) {
	t.Parallel()
	tf := NewTUITest(t)
	defer tf.Cleanup()

	err := tf.StartApp()
	require.NoError(t, err, "Failed to start app")

	// Wait for TUI to initialize and render
	require.True(t, tf.Ready(), "Should show the empty state")
	require.True(t, tf.SeePlain("dealgrip"), "Should show dealgrip title")

	// Set up exit monitoring before sending 'q'
	done := make(chan error, 1)
	go func() {
		done <- tf.cmd.Wait()
	}()

	t.Logf("Sending 'q' to quit application...")
	tf.Quit()

	select {
	case exitErr := <-done:
		if exitErr == nil {
			t.Logf("Process exited cleanly with 'q' command")
		} else {
			t.Logf("Process exited with 'q' command (exit code: %v)", exitErr)
		}
		return
	case <-time.After(1500 * time.Millisecond):
		t.Logf("'q' did not exit the app, trying Ctrl+C")
		tf.SendCtrlC()
	}

	select {
	case exitErr := <-done:
		t.Logf("Process exited with Ctrl+C (exit code: %v)", exitErr)
	case <-time.After(750 * time.Millisecond):
		t.Error("Application did not exit within total timeout")
		tf.DumpTailOnFail(t, "exit-failure", 4096)
		tf.SendCtrlC()
	}
}

func TestQuitWhileRequestInFlight(t *testing.T) {
	t.Parallel()

	slowURL, stop, err := startMockAPI("--seed", "2", "--latency", "5s")
	require.NoError(t, err)
	defer stop()

	tf := NewTUITest(t)
	defer tf.Cleanup()
	tf.UseAPI(slowURL)

	require.NoError(t, tf.StartApp())
	require.True(t, tf.Ready(), "Should show the empty state")

	require.NoError(t, tf.Browse("food"))
	require.True(t, tf.OutputContainsPlain("Loading page 1", 3*time.Second), "Should show the pending fetch")

	done := make(chan error, 1)
	go func() {
		done <- tf.cmd.Wait()
	}()
	tf.Quit()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		tf.DumpTailOnFail(t, "quit-inflight", 4096)
		t.Fatal("app did not exit while a fetch was in flight")
	}
}
