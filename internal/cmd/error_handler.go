package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/config"
	"github.com/fmeflow/fmeflow-cli/internal/resolve"
)

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder
	var apiErr *api.Error
	var notFound *resolve.NotFoundError
	var ambiguous *resolve.AmbiguousError

	switch {
	case errors.Is(err, config.ErrNotConfigured):
		msg.WriteString("Not configured.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: fmeflow auth login --server-url <url> --token <token> --repo <name>\n")
		msg.WriteString("  - Or set FMEFLOW_SERVER_URL and FMEFLOW_TOKEN\n")

	case errors.As(err, &notFound):
		fmt.Fprintf(&msg, "Error: %s\n\n", notFound.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - List workspaces: fmeflow workspaces list\n")
		msg.WriteString("  - Check the repository: --repo <name>\n")

	case errors.As(err, &ambiguous):
		fmt.Fprintf(&msg, "Error: %s\n\n", ambiguous.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Use the full workspace file name\n")

	case errors.As(err, &apiErr):
		if apiErr.Status > 0 {
			fmt.Fprintf(&msg, "API error [%s] (HTTP %d): %s\n\n", apiErr.Code, apiErr.Status, apiErr.Message)
		} else {
			fmt.Fprintf(&msg, "Error [%s]: %s\n\n", apiErr.Code, apiErr.Error())
		}
		msg.WriteString(suggestionsFor(apiErr))

	case strings.Contains(err.Error(), "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check if the FME Flow server is running\n")
		msg.WriteString("  - Verify the URL: fmeflow auth status\n")

	case strings.Contains(err.Error(), "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the server URL spelling\n")
		msg.WriteString("  - Verify your DNS settings\n")

	case strings.Contains(err.Error(), "certificate"):
		msg.WriteString("TLS certificate error.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the server's certificate\n")
		msg.WriteString("  - Ensure you're using https:// correctly\n")

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func suggestionsFor(e *api.Error) string {
	var s strings.Builder
	s.WriteString("Suggestions:\n")
	if hint := e.Code.Suggestion(); hint != "" {
		fmt.Fprintf(&s, "  - %s\n", hint)
	}

	switch {
	case e.Status == 401:
		s.WriteString("  - Your token may be invalid or expired\n")
		s.WriteString("  - Run: fmeflow auth login\n")
	case e.Status == 403:
		s.WriteString("  - The token lacks permission for this repository or workspace\n")
	case e.Status == 404:
		s.WriteString("  - The repository, workspace or job doesn't exist\n")
		s.WriteString("  - Check names with: fmeflow workspaces list\n")
	case e.Status == 409:
		s.WriteString("  - The job is no longer in a state that allows this action\n")
	case e.Status == 422 || e.Status == 400:
		s.WriteString("  - Check parameter names with: fmeflow workspaces params <workspace>\n")
	case e.Status == 429:
		s.WriteString("  - Wait and retry in a few seconds\n")
	case e.Status >= 500:
		s.WriteString("  - Server error - wait and retry\n")
		s.WriteString("  - Check the FME Flow engine and job logs\n")
	case e.Code.IsRetryable():
		s.WriteString("  - Retry the command\n")
	}
	s.WriteString("  - Use --debug for more details\n")
	return s.String()
}
