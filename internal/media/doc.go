// Package media runs local media tools such as ffmpeg on behalf of the task
// engine. Each invocation is retried with the local tool retry preset, and
// the Runner is exposed to the worker pool through a task.Handler.
package media
