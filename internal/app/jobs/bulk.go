package jobs

import (
	"context"

	"github.com/google/uuid"
)

// BulkItemError records one job ID that a bulk operation could not process.
type BulkItemError struct {
	JobID uuid.UUID
	Error string
}

// BulkResult summarizes a RetryMany/CancelMany call: how many of the
// requested job IDs succeeded versus failed, with a per-failure reason.
type BulkResult struct {
	Total     int
	Processed int
	Failed    int
	Errors    []BulkItemError
}

// RetryMany calls Retry for each job ID in sequence, collecting per-job
// failures instead of aborting the batch on the first error.
func (e *Executor) RetryMany(ctx context.Context, jobIDs []uuid.UUID) BulkResult {
	result := BulkResult{Total: len(jobIDs)}
	for _, id := range jobIDs {
		if _, err := e.Retry(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{JobID: id, Error: err.Error()})
			continue
		}
		result.Processed++
	}
	return result
}

// CancelMany calls Cancel for each job ID in sequence, collecting per-job
// failures instead of aborting the batch on the first error.
func (e *Executor) CancelMany(ctx context.Context, jobIDs []uuid.UUID) BulkResult {
	result := BulkResult{Total: len(jobIDs)}
	for _, id := range jobIDs {
		if err := e.Cancel(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{JobID: id, Error: err.Error()})
			continue
		}
		result.Processed++
	}
	return result
}
