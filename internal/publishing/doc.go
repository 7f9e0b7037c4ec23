// Package publishing runs the publishing sequence against a freshly started
// runtime: unlock the agent, publish each language bundle named by the seed
// descriptor, and write the resulting bootstrap seed.
//
// The Dispatcher starts that sequence at most once, on its own goroutine,
// so the caller can keep relaying runtime output while it runs.
package publishing
