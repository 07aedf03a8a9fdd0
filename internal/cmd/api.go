package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/dryrun"
)

func newAPICmd() *cobra.Command {
	var method string
	var fields []string
	var rawFields []string
	var inputFile string
	var jsonBody string
	var silent bool
	var includeHeaders bool

	cmd := &cobra.Command{
		Use:   "api <endpoint>",
		Short: "Make raw requests to the FME Flow REST API",
		Long: `Make raw requests to any FME Flow REST endpoint.

The endpoint is relative to /fmerest/v3 and may carry a query string:
  "repositories/Samples/items?type=WORKSPACE" becomes
  /fmerest/v3/repositories/Samples/items?type=WORKSPACE

The configured token is sent as usual, and failures map to the same exit
codes as the dedicated commands.`,
		Example: `  # GET request (default)
  fmeflow api info

  # Query parameters
  fmeflow api "repositories/Samples/items?type=WORKSPACE&limit=5"

  # POST with fields
  fmeflow api transformations/submit/Samples/clip.fmw -X POST -F 'publishedParameters=[{"name":"FORMAT","value":"SHAPE"}]'

  # Body from stdin
  echo '{"publishedParameters":[]}' | fmeflow api transformations/submit/Samples/clip.fmw -X POST -i -

  # Filter with jq
  fmeflow api repositories --output json --query '.items[].name'

  # Show status and headers
  fmeflow api info --include`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			validMethods := map[string]bool{
				"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
			}
			method = strings.ToUpper(method)
			if !validMethods[method] {
				return fmt.Errorf("invalid HTTP method %q: must be one of GET, POST, PUT, PATCH, DELETE", method)
			}
			if jsonBody != "" && inputFile != "" {
				return fmt.Errorf("cannot use both --body and --input flags")
			}

			endpoint, query, err := splitEndpoint(args[0])
			if err != nil {
				return err
			}

			body, err := buildRequestBody(fields, rawFields, inputFile, jsonBody)
			if err != nil {
				return err
			}
			var payload []byte
			if body != nil {
				if payload, err = json.Marshal(body); err != nil {
					return fmt.Errorf("failed to encode request body: %w", err)
				}
			}

			if method != http.MethodGet {
				preview := dryrun.NewPreview(strings.ToLower(method), "/fmerest/v3/"+endpoint)
				preview.Method = method
				if body != nil {
					preview.Details = body
				}
				if handled, err := maybeDryRun(cmd, preview); handled {
					return err
				}
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			resp, err := client.Raw(ctx, method, endpoint, query, payload)
			if err != nil {
				return err
			}
			if resp.Aborted() {
				return abortErr(ctx)
			}

			if silent {
				return nil
			}

			if isJSON(cmd) {
				return printJSON(cmd, apiJSONPayload(resp.Data, resp.Header, resp.Status, includeHeaders))
			}

			if includeHeaders {
				_, _ = fmt.Fprintf(out, "HTTP %d\n", resp.Status)
				keys := make([]string, 0, len(resp.Header))
				for k := range resp.Header {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					for _, v := range resp.Header[k] {
						_, _ = fmt.Fprintf(out, "%s: %s\n", k, v)
					}
				}
				_, _ = fmt.Fprintln(out)
			}

			if len(resp.Data) > 0 {
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, resp.Data, "", "  "); err == nil {
					_, _ = fmt.Fprintln(out, pretty.String())
					return nil
				}
				_, _ = fmt.Fprintln(out, string(resp.Data))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method (GET, POST, PUT, PATCH, DELETE)")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Request body field as key=value (string)")
	cmd.Flags().StringArrayVarP(&rawFields, "raw-field", "F", nil, "Request body field as key=value (JSON parsed)")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Read request body from file (use - for stdin)")
	cmd.Flags().StringVarP(&jsonBody, "body", "d", "", "Request body as inline JSON string")
	cmd.Flags().BoolVarP(&silent, "silent", "s", false, "Suppress output")
	cmd.Flags().BoolVar(&includeHeaders, "include", false, "Include response status and headers in output")
	flagAlias(cmd.Flags(), "include", "inc")

	return cmd
}

// splitEndpoint separates the path from an optional query string. A leading
// /fmerest/v3 is accepted and dropped.
func splitEndpoint(raw string) (string, url.Values, error) {
	path, rawQuery, _ := strings.Cut(strings.TrimSpace(raw), "?")
	path = strings.Trim(path, "/")
	path = strings.TrimPrefix(path, "fmerest/v3")
	path = strings.Trim(path, "/")
	if path == "" {
		return "", nil, fmt.Errorf("endpoint is required")
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("invalid query string %q: %w", rawQuery, err)
	}
	return path, query, nil
}

func apiJSONPayload(respBody []byte, headers http.Header, statusCode int, includeHeaders bool) any {
	body := apiJSONBody(respBody)
	if !includeHeaders {
		return body
	}
	return map[string]any{
		"status":  statusCode,
		"headers": headers,
		"body":    body,
	}
}

func apiJSONBody(respBody []byte) any {
	if len(respBody) == 0 {
		return nil
	}
	if !json.Valid(respBody) {
		return string(respBody)
	}
	return json.RawMessage(respBody)
}

// buildRequestBody merges the inline body, the input file and the fields,
// later sources overriding earlier ones.
func buildRequestBody(fields, rawFields []string, inputFile, jsonBody string) (map[string]any, error) {
	body := make(map[string]any)

	if jsonBody != "" {
		if err := json.Unmarshal([]byte(jsonBody), &body); err != nil {
			return nil, fmt.Errorf("failed to parse --body JSON: %w", err)
		}
	}

	if inputFile != "" {
		inputData, err := readInput(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if err := json.Unmarshal(inputData, &body); err != nil {
			return nil, fmt.Errorf("failed to parse input JSON: %w", err)
		}
	}

	for _, field := range fields {
		key, value, err := parseField(field)
		if err != nil {
			return nil, err
		}
		body[key] = value
	}

	for _, field := range rawFields {
		key, value, err := parseRawField(field)
		if err != nil {
			return nil, err
		}
		body[key] = value
	}

	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// parseField parses a key=value field where value is a string
func parseField(field string) (string, string, error) {
	key, value, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid field format %q: must be key=value", field)
	}
	return key, value, nil
}

// parseRawField parses a key=value field where value is JSON
func parseRawField(field string) (string, any, error) {
	key, raw, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid raw field format %q: must be key=value", field)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("invalid JSON in raw field %q: %w", key, err)
	}
	return key, value, nil
}
