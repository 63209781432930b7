package task

import "time"

// Scheduler is the suspension primitive a worker's run-context provides
// to the task it is running. Task.Yield/Task.Wait call Suspend to give
// control back to the worker's scheduling loop; the worker resumes the
// call only when it next dispatches this task's fiber.
//
// Defined here rather than in package worker so task has no dependency
// on the scheduler that runs it — worker.RunContext implements this
// interface instead of task importing worker (which would cycle back
// since worker already imports task).
type Scheduler interface {
	Suspend(blockHint time.Duration)
}
