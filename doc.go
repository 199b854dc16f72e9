// Package coop implements a single-threaded, cooperative task scheduler:
// tasks are goroutines that suspend only by sending a kernel primitive
// through a Yield handle, and the scheduler resumes exactly one of them at
// a time. Readiness I/O, timers, OS signals and subprocess/worker futures
// all feed back into the same ready queue, so nothing observable runs
// concurrently with a running task.
//
// Construct a Scheduler with NewScheduler or NewSchedulerOptions, submit
// coroutines with CreateTask, and call Run to drive them to completion.
package coop
