// Package task defines the unit of work the runner schedules. A Task has a
// name, an execution mode and a set of prerequisite tasks referenced by
// identity. Constructing a task performs no I/O; every side effect happens
// inside Run.
package task
