// Package logx is uninotifier's structured logger, a thin layer over zerolog.
//
// Components receive a Logger and tag it once with comp=<name>. Loggers
// derived from a Service follow its level and sinks, so a config reload that
// changes logging applies to every component without rewiring. The console
// sink is human readable, the file sink is one JSON object per line.
package logx
