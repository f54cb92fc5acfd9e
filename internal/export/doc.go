// Package export renders score results in the Prometheus text exposition
// format, one gauge family per score component plus a state set.
package export
