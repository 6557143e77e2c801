// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dmcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus is returned for responses outside 2xx.
var ErrUnexpectedStatus = errors.New("unexpected status code")

type endpoint string

func configurationEndpoint(module string) endpoint {
	return endpoint("/modules/" + url.PathEscape(module) + "/configuration")
}

func heartbeatEndpoint(module string) endpoint {
	return endpoint("/modules/" + url.PathEscape(module) + "/heartbeat")
}

// getJSON does a GET request and decodes the JSON response into R.
// An empty body yields a nil result.
func getJSON[R any](ctx context.Context, client *http.Client, baseURL string, ep endpoint, logger *zap.SugaredLogger) (*R, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+string(ep), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	return do[R](client, req, logger)
}

// postJSON encodes body as JSON, posts it and decodes the response into R.
func postJSON[R any, T any](ctx context.Context, client *http.Client, baseURL string, ep endpoint, body *T, logger *zap.SugaredLogger) (*R, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+string(ep), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	return do[R](client, req, logger)
}

// maxResponseSize bounds what a supercomponent reply may occupy in memory.
const maxResponseSize = 4 << 20

func do[R any](client *http.Client, req *http.Request, logger *zap.SugaredLogger) (*R, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, describeTransportError(err)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if closeErr := resp.Body.Close(); closeErr != nil {
		logger.Debugw("closing response body", "path", req.URL.Path, "error", closeErr)
	}

	if readErr != nil {
		return nil, fmt.Errorf("reading %s: %w", req.URL.Path, readErr)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: %w %d", req.Method, req.URL.Path, ErrUnexpectedStatus, resp.StatusCode)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil //nolint:nilnil // empty reply carries no document
	}

	out := new(R)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", req.URL.Path, err)
	}

	return out, nil
}

// describeTransportError adds a hint about what most likely went wrong.
func describeTransportError(err error) error {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("supercomponent unreachable: %w", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "Timeout"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("supercomponent timed out: %w", err)
	default:
		return fmt.Errorf("supercomponent request: %w", err)
	}
}
