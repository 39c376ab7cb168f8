// Package job defines the email job model: the immutable Email payload
// submitted by callers, the mutable Record the queue service tracks it
// with, and the priority → queue routing rules.
package job
