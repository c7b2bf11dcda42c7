/*
Package observability provides monitoring for the conversation controller.

Metrics turns controller hooks into Prometheus collectors, LogHooks writes the
same events through slog, and Combine fans one event out to several hook sets.
*/
package observability
