package ddprofiler

import (
	"context"
	"os"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddstore"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// runningInLambda infers if the program is running in AWS lambda via inspection of the environment
func runningInLambda() bool {
	expectedEnvVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

// lambdaHandler serves online submissions as Lambda invocations. Each
// invocation profiles one source and returns once its profiles are flushed.
type lambdaHandler struct {
	conductor *Conductor
	store     ddstore.Store
}

func (h *lambdaHandler) handleRequest(ctx context.Context, spec ddtask.Spec) (Stats, error) {
	d, err := spec.Descriptor()
	if err != nil {
		return Stats{}, err
	}
	if err := h.conductor.Submit(d); err != nil {
		return Stats{}, err
	}
	if err := h.conductor.Wait(ctx); err != nil {
		return h.conductor.Stats(), err
	}
	if err := h.store.Flush(ctx); err != nil {
		return h.conductor.Stats(), err
	}
	return h.conductor.Stats(), nil
}
