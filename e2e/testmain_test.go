//go:build e2e && unix

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

// apiURL is the shared mock API started by TestMain
var apiURL string

func TestMain(m *testing.M) {
	e2eDir, err := os.Getwd()
	if err != nil {
		fmt.Printf("Failed to get working directory: %v\n", err)
		os.Exit(1)
	}

	binPath = e2eDir + "/dealgrip_e2e"
	mockBinPath = e2eDir + "/mockapi_e2e"

	fmt.Println("Building test binaries from main project...")
	for _, build := range [][]string{
		{"go", "build", "-o", binPath, "."},
		{"go", "build", "-o", mockBinPath, "./cmd/mockapi"},
	} {
		cmd := exec.Command(build[0], build[1:]...)
		cmd.Dir = ".." // Run from parent directory
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fmt.Printf("Failed to build %s: %v\n", build[len(build)-1], err)
			os.Exit(1)
		}
	}

	url, stop, err := startMockAPI("--seed", "1", "--deals", "300", "--latency", "50ms")
	if err != nil {
		fmt.Printf("Failed to start mock api: %v\n", err)
		os.Exit(1)
	}
	apiURL = url

	code := m.Run()

	stop()
	os.Remove(binPath)
	os.Remove(mockBinPath)
	os.Exit(code)
}

// startMockAPI runs the mock API on a free port and waits until it is healthy
func startMockAPI(args ...string) (string, func(), error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	addr := l.Addr().String()
	l.Close()

	cmd := exec.Command(mockBinPath, append([]string{"--address", addr}, args...)...)
	if err := cmd.Start(); err != nil {
		return "", nil, err
	}
	stop := func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}

	url := "http://" + addr
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return url, stop, nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	stop()
	return "", nil, fmt.Errorf("mock api on %s did not become healthy", addr)
}
