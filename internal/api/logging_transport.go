// Package api holds shared outbound-HTTP plumbing, currently the optional
// request/response logger wrapped around every client in the process.
package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and dumps request and response
// details to a log file. JSON response bodies are captured in full; media
// payloads are logged headers-only.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport opens logFilePath for appending and wraps transport
// (http.DefaultTransport when nil).
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()

	if reqDump, err := httputil.DumpRequestOut(req, true); err != nil {
		log.WithError(err).Error("Failed to dump request for API logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s\n", startTime.Format(time.RFC3339), string(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	switch {
	case err != nil:
		t.writeLog(fmt.Sprintf("--- Response Error (Duration: %v) ---\n%s\n", duration, err.Error()))
	case strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"):
		t.logJSONResponse(resp, duration)
	default:
		if respDump, dumpErr := httputil.DumpResponse(resp, false); dumpErr == nil {
			t.writeLog(fmt.Sprintf("--- Response Headers (Duration: %v) ---\n%s\n(Body not logged)\n", duration, string(respDump)))
		}
	}

	t.writer.Flush()
	return resp, err
}

// logJSONResponse captures the full body, then restores it so the caller
// can still read it.
func (t *LoggingTransport) logJSONResponse(resp *http.Response, duration time.Duration) {
	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		log.WithError(readErr).Error("Failed to read response body for API logging")
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\nStatus: %s\n(Body read failed)\n", duration, resp.Status))
		return
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if respDump, dumpErr := httputil.DumpResponse(resp, false); dumpErr == nil {
		t.writeLog(fmt.Sprintf("--- Response Headers (Duration: %v) ---\n%s\n--- Response Body ---\n%s\n", duration, string(respDump), string(bodyBytes)))
	} else {
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\nStatus: %s\n%s\n", duration, resp.Status, string(bodyBytes)))
	}
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
