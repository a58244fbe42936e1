// Package logger configures the application's structured logger.
// Production environments get JSON output, everything else plain text.
package logger
