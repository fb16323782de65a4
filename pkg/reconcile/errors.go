package reconcile

import "fmt"

// DataSizeLimitExceededError is returned before anything is staged when the task data of a
// pass is larger than the configured ceiling.
type DataSizeLimitExceededError struct {
	Size  int
	Limit int
}

func (e *DataSizeLimitExceededError) Error() string {
	return fmt.Sprintf("task data size %d exceeds the limit of %d bytes", e.Size, e.Limit)
}
