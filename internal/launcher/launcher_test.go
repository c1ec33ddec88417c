package launcher_test

import (
	"testing"

	"sprocket/internal/config"
	"sprocket/internal/launcher"
)

func configWithBinary(binary string) config.Dispatch {
	return config.Dispatch{WorkerBinary: binary, WorkerStartTimeout: 5}
}

func TestReadyLineRoundTrip(t *testing.T) {
	line := launcher.ReadyLine("job-1")
	if line != "sprocket-worker ready job-1" {
		t.Fatalf("unexpected ready line: %q", line)
	}
	if !launcher.IsReadyLine(line, "job-1") {
		t.Fatal("expected ready line to match its job")
	}
	if !launcher.IsReadyLine("  "+line+"  ", "job-1") {
		t.Fatal("expected surrounding whitespace to be tolerated")
	}
	if launcher.IsReadyLine(line, "job-2") {
		t.Fatal("expected mismatch for different job id")
	}
	if launcher.IsReadyLine("worker log output", "job-1") {
		t.Fatal("expected ordinary output not to match")
	}
}

func TestHandleString(t *testing.T) {
	h := launcher.Handle{PID: 4242}
	if h.String() != "pid:4242" {
		t.Fatalf("unexpected handle string: %q", h.String())
	}
}

func TestNewProcessLauncherRequiresBinary(t *testing.T) {
	if _, err := launcher.NewProcessLauncher(configWithBinary(""), "", nil); err == nil {
		t.Fatal("expected error for empty worker binary")
	}
	if _, err := launcher.NewProcessLauncher(configWithBinary("sprocket-worker"), "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
