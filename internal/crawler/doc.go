// Package crawler defines the core job and analysis types shared by the
// scheduler, the worker, the stores and the API, along with the job
// lifecycle state machine.
package crawler
