// Package worker provides the swap worker pool and the completion
// queue that rejoins finished requests with the pipeline thread.
package worker
