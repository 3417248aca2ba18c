package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrScopeParse       = errors.New("seed URL cannot be parsed")      // Fatal: aborts the run before crawling
	ErrTransport        = errors.New("could not fetch page")           // Per-URL: logged, URL marked visited
	ErrURLParse         = errors.New("URL parse/resolve error")        // Per-link: link dropped
	ErrIO               = errors.New("report I/O error")               // Per-report: surfaced, crawl continues
	ErrDatabase         = errors.New("database error")                 // Wraps badger errors
	ErrParsing          = errors.New("parsing error")                  // Wraps HTML/JSON/YAML parsing errors
	ErrFilesystem       = errors.New("filesystem error")               // Wraps os errors outside report writing
	ErrConfigValidation = errors.New("configuration validation error") // Invalid or missing config values

	// Transport details, always wrapped together with ErrTransport
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrFetchTimeout     = errors.New("fetch timed out")
)

// CategorizeError maps an error to a predefined category string for logging and the page DB.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrScopeParse):
		return "Config_ScopeParse"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrTransport), isTransportDetail(err):
		return categorizeTransport(err)
	case errors.Is(err, ErrURLParse):
		return "Content_ParsingURL"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		if strings.Contains(errMsg, "YAML") {
			return "Content_ParsingYAML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrIO):
		return "Report_" + categorizeFilesystem(err)
	case errors.Is(err, ErrFilesystem):
		return "Filesystem_" + categorizeFilesystem(err)
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if cat := categorizeNetwork(err); cat != "" {
		return "Network_" + cat
	}
	return "Unknown"
}

// categorizeTransport narrows a transport failure down to its cause.
func categorizeTransport(err error) string {
	switch {
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "429"} {
			if strings.Contains(errMsg, " "+code+" ") || strings.HasSuffix(errMsg, " "+code) {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrFetchTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Network_Timeout"
	case errors.Is(err, context.Canceled):
		return "System_ContextCanceled"
	}
	if cat := categorizeNetwork(err); cat != "" {
		return "Network_" + cat
	}
	return "Network_Other"
}

func isTransportDetail(err error) bool {
	for _, target := range []error{ErrClientHTTPError, ErrServerHTTPError, ErrOtherHTTPError, ErrRequestCreation, ErrResponseBodyRead, ErrFetchTimeout} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func categorizeFilesystem(err error) string {
	switch {
	case errors.Is(err, os.ErrPermission):
		return "Permission"
	case errors.Is(err, os.ErrNotExist):
		return "NotExist"
	case errors.Is(err, os.ErrExist):
		return "Exist"
	}
	return "Other"
}

// categorizeNetwork inspects net.Error values and common error strings.
// Returns "" when nothing matches.
func categorizeNetwork(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"), strings.Contains(lowerErrMsg, "deadline exceeded"):
		return "Timeout"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "DNSLookup"
	case strings.Contains(lowerErrMsg, "tls"), strings.Contains(lowerErrMsg, "certificate"):
		return "TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "ConnectionReset"
	}
	return ""
}
