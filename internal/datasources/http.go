package datasources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is the subset of *http.Client used by collectors and providers
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx upstream responses
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// DoJSON sends req through guard and decodes a JSON body into out.
// A nil guard sends the request unguarded.
func DoJSON(ctx context.Context, client HTTPClient, guard *Guard, req *http.Request, out interface{}) error {
	call := func(ctx context.Context) error {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			// query strings carry api tokens for some upstreams
			return &StatusError{
				Method:     req.Method,
				URL:        req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
		return nil
	}

	if guard == nil {
		return call(ctx)
	}
	return guard.Do(ctx, call)
}
