// Package queue provides the bounded FIFO hand-off between pipeline stages and the
// reorderer that restores capture order after a parallel stage.
package queue
