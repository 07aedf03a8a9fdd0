package cmd

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/config"
	"github.com/fmeflow/fmeflow-cli/internal/resolve"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if handled, ok := err.(*handledError); ok {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}

	if errors.Is(err, config.ErrNotConfigured) {
		return exitAuth
	}
	var notFound *resolve.NotFoundError
	if errors.As(err, &notFound) {
		return exitNotFound
	}
	if code := exitCodeFromAPI(err); code != 0 {
		return code
	}
	if isUsageError(err) {
		return exitUsage
	}
	if isNetworkError(err) {
		return exitNetwork
	}
	return exitGeneric
}

func exitCodeFromAPI(err error) int {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return 0
	}
	switch apiErr.Status {
	case 401:
		return exitAuth
	case 403:
		return exitForbidden
	case 404:
		return exitNotFound
	case 429:
		return exitRateLimited
	}
	if apiErr.Status >= 500 {
		return exitServer
	}
	switch apiErr.Code {
	case api.CodeWebhookAuth:
		return exitAuth
	case api.CodeCircuitOpen:
		return exitServer
	case api.CodeRequestTimeout, api.CodeRequestFailed:
		return exitNetwork
	case api.CodeInvalidConfig, api.CodeURLTooLong, api.CodeInvalidPathSegment, api.CodeGeometryInvalid:
		return exitUsage
	}
	if apiErr.Status >= 400 {
		return exitUsage
	}
	return 0
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "tls") ||
		strings.Contains(msg, "certificate") ||
		strings.Contains(msg, "timeout")
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid parameter",
		"invalid value",
		"invalid syntax",
		"must be",
		"is required",
		"cannot be",
		"cannot use both",
		"conflicts with",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
