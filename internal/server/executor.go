package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/bengal-ssg/bengal/internal/build"
)

// EnvExecutor selects the build executor in serve mode: "inprocess"
// (default) or "subprocess".
const EnvExecutor = "BENGAL_BUILD_EXECUTOR"

// subprocessTimeout is the liveness limit on out-of-process builds. A child
// that exceeds it is killed and the rebuild marked failed.
const subprocessTimeout = 120 * time.Second

// Executor runs one build on behalf of the dev loop.
type Executor interface {
	Name() string
	Build(ctx context.Context, in build.Input) (*build.Stats, error)
}

// NewExecutor picks the executor named by the environment. Unknown values
// fall back to in-process.
func NewExecutor(b *build.Builder, root string) Executor {
	if os.Getenv(EnvExecutor) == "subprocess" {
		bin, err := os.Executable()
		if err == nil {
			return &subprocessExecutor{bin: bin, root: root, timeout: subprocessTimeout}
		}
	}
	return &inProcessExecutor{b: b}
}

// inProcessExecutor runs builds on the serve process's own builder. Fast and
// the default; template and parse caches stay warm between rebuilds.
type inProcessExecutor struct {
	b *build.Builder
}

func (e *inProcessExecutor) Name() string { return "inprocess" }

func (e *inProcessExecutor) Build(ctx context.Context, in build.Input) (*build.Stats, error) {
	return e.b.Build(ctx, in)
}

// subprocessExecutor shells each rebuild out to `bengal build --input-json -`
// with the input serialized on stdin and the stats read back from stdout.
// Isolates the serve process from build crashes at the cost of cold caches.
type subprocessExecutor struct {
	bin     string
	root    string
	timeout time.Duration
}

func (e *subprocessExecutor) Name() string { return "subprocess" }

func (e *subprocessExecutor) Build(ctx context.Context, in build.Input) (*build.Stats, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding build input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.bin, "build", "--input-json", "-")
	cmd.Dir = e.root
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("build subprocess exceeded %s and was killed", e.timeout)
		}
		return nil, fmt.Errorf("build subprocess: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	stats := &build.Stats{}
	if err := json.Unmarshal(stdout.Bytes(), stats); err != nil {
		return nil, fmt.Errorf("decoding build stats: %w", err)
	}
	return stats, nil
}
