package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/poiesic/sheetvec/core"
)

// Opener returns a stream of the tabular export found at url.
// Implementations report unreachable sources as *core.FetchError.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPOpener reads sources over http and https.
type HTTPOpener struct {
	client *http.Client
}

// NewHTTPOpener creates an opener using client. The client's Timeout bounds every request.
func NewHTTPOpener(client *http.Client) *HTTPOpener {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPOpener{client: client}
}

// Open issues a GET request and returns the body when the status is 2xx.
func (o *HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &core.FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &core.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return resp.Body, nil
}
