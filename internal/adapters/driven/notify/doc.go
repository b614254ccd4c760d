// Package notify delivers pipeline events to ntfy, Telegram and email.
//
// Every sink implements driven.Notifier. Multi fans an event out to all
// configured sinks and Noop stands in when none are. Callers treat
// delivery as best effort, so sinks only report errors and never retry.
package notify
