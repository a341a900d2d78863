// Package logging provides structured logging utilities for templatemail.
//
// It keeps attribute names consistent across the web UI, the CLI and the MCP
// tools, and makes sure recipient addresses and OAuth tokens never reach the
// logs in clear text.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "template.send")
//	logger.Info("email sent",
//	    logging.Template("welcome.html"),
//	    logging.Channel("gmail"),
//	    logging.Recipients(to))
package logging
