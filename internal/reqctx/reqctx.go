// Package reqctx carries the scrape job identity through a context so that
// logs and errors deep in the pipeline can name the run and target.
package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type key int

const jobKey key = 0

// JobContext identifies the run and, once set, the target being processed
type JobContext struct {
	JobID     string
	Target    string
	StartTime time.Time
}

// WithJob attaches a job to ctx. An empty id generates a new UUID.
func WithJob(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return context.WithValue(ctx, jobKey, &JobContext{
		JobID:     jobID,
		StartTime: time.Now(),
	})
}

// WithTarget returns a child context naming the target within the current job
func WithTarget(ctx context.Context, target string) context.Context {
	jc := GetJobContext(ctx)
	return context.WithValue(ctx, jobKey, &JobContext{
		JobID:     jc.JobID,
		Target:    target,
		StartTime: jc.StartTime,
	})
}

// GetJobContext returns the job attached to ctx, or an "unknown" job
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(jobKey).(*JobContext); ok {
		return jc
	}
	return &JobContext{
		JobID:     "unknown",
		StartTime: time.Now(),
	}
}

// JobError wraps an error with job context
type JobError struct {
	JobID  string
	Target string
	Err    error
}

// Error implements the error interface
func (e *JobError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s %s] %v", e.JobID, e.Target, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.JobID, e.Err)
}

// Unwrap returns the underlying error
func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError from context
func NewJobError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	jc := GetJobContext(ctx)
	return &JobError{
		JobID:  jc.JobID,
		Target: jc.Target,
		Err:    err,
	}
}
