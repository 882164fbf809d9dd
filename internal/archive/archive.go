// Package archive ships finished run logs to long-term storage. A sink
// receives the label configured for the job and the path of the log file
// produced by the run.
package archive

import "context"

// Sink stores one run log under the given label.
type Sink interface {
	Store(ctx context.Context, label, logPath string) error
}
