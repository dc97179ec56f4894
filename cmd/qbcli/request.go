package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/qbproxy-go/pkg/qbproxy"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	requestData      []string
	requestFiles     []string
	requestStringify bool
	requestText      bool
	requestToken     string
)

var requestCmd = &cobra.Command{
	Use:   "request <method> <resource>",
	Short: "Send a request to an API resource, e.g. 'request GET users'",
	Long: `Send a request to an API resource.

The resource is joined to the API endpoint with the .json suffix. A full URL
is sent as-is. A session is created first unless --token is given, and an
expired session is renewed with the same credentials.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, err := newProxy()
		if err != nil {
			return err
		}
		defer proxy.Close()

		req, err := buildRequest(proxy, args[0], args[1])
		if err != nil {
			return err
		}

		if requestToken != "" {
			proxy.SetSession(&qbproxy.Session{Token: requestToken})
		} else if _, err := proxy.CreateSession(cmd.Context(), user()); err != nil {
			return errors.Wrap(err, "failed to create session")
		}
		proxy.SetSessionExpiredHandler(qbproxy.CredentialsRenewer(proxy, user()))

		resp, err := proxy.Do(cmd.Context(), req)
		if err != nil {
			return err
		}

		if requestText {
			fmt.Println(resp.Text())
			return nil
		}
		return printJSON(resp.Data)
	},
}

func init() {
	requestCmd.Flags().StringArrayVarP(&requestData, "data", "d", nil, "Payload field as key=value; nested keys use brackets, e.g. user[login]=bob")
	requestCmd.Flags().StringArrayVarP(&requestFiles, "file", "f", nil, "File field as key=path, sent as multipart")
	requestCmd.Flags().BoolVar(&requestStringify, "json", false, "Send the payload as JSON")
	requestCmd.Flags().BoolVar(&requestText, "text", false, "Print the raw response body")
	requestCmd.Flags().StringVar(&requestToken, "token", "", "Use an existing session token")
}

func buildRequest(proxy *qbproxy.Proxy, method, resource string) (*qbproxy.Request, error) {
	req := &qbproxy.Request{
		Method:        strings.ToUpper(method),
		URL:           resource,
		NeedStringify: requestStringify,
	}
	if !strings.Contains(resource, "://") {
		req.URL = proxy.URL(strings.Split(strings.Trim(resource, "/"), "/")...)
	}
	if requestText {
		req.DataType = qbproxy.DataTypeText
	}

	data, err := parseFields(requestData)
	if err != nil {
		return nil, err
	}

	for _, field := range requestFiles {
		key, path, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("invalid file field %q, expected key=path", field)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		data[key] = &qbproxy.File{Name: filepath.Base(path), Data: content}
		req.Multipart = true
		if key == "file" {
			req.FileToCustomObject = true
		}
	}

	req.Data = data
	return req, nil
}

// parseFields turns key=value pairs into a payload. Bracketed keys nest:
// a[b]=1 becomes {"a": {"b": "1"}}.
func parseFields(fields []string) (map[string]interface{}, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	data := map[string]interface{}{}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data field %q, expected key=value", field)
		}

		path := splitKey(key)
		node := data
		for _, part := range path[:len(path)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[part] = child
			}
			node = child
		}
		node[path[len(path)-1]] = value
	}
	return data, nil
}

// splitKey splits "a[b][c]" into a, b and c
func splitKey(key string) []string {
	head, rest, found := strings.Cut(key, "[")
	if !found {
		return []string{key}
	}
	return append([]string{head}, strings.Split(strings.TrimSuffix(rest, "]"), "][")...)
}
