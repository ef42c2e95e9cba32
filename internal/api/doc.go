// Package api handles incoming HTTP requests, request validation and
// response formatting for the task engine. It acts as an adapter between
// external clients and the worker pool, translating HTTP concerns into job
// submissions and pool errors into status codes.
package api
