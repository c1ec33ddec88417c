package stage

import "context"

// Stage is the uniform contract every pipeline stage implements. Execute
// receives the accumulated pipeline context and either extends it or returns
// a tagged error; there is no best-effort mode and no partial result path.
type Stage interface {
	Name() string
	Execute(ctx context.Context, pc *Context) error
	HealthCheck(ctx context.Context) Health
}
