package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultUserAgent is sent with every listing request. The mirror endpoints
// serve the mobile client, so the UA has to look like one.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) 115disk/35.5.1"

// snapPath is the shared-folder listing endpoint, relative to a mirror base.
const snapPath = "/share/snap"

// ListPayload is the query payload for one paginated listing call. Order is
// one of file_name, file_size, file_type, user_utime, user_ptime, user_otime;
// Asc is 0 or 1.
type ListPayload struct {
	ShareCode   string
	ReceiveCode string
	CID         string
	Limit       int
	Offset      int
	Order       string
	Asc         int
}

// ListResponse is the provider's listing envelope. State reports logical
// success; Data carries the page. Count is the directory's total entry count
// as reported on this page.
type ListResponse struct {
	State   bool   `json:"state"`
	Message string `json:"error"`
	Errno   int    `json:"errno"`
	Data    struct {
		Count int        `json:"count"`
		List  []RawEntry `json:"list"`
	} `json:"data"`
}

// Client issues shared-folder listing calls. The HTTP client is injected so
// callers control timeouts and proxies; a nil client falls back to
// http.DefaultClient.
type Client struct {
	hc        *http.Client
	userAgent string
}

// NewClient builds a listing client around hc.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, userAgent: DefaultUserAgent}
}

// ListShareDirectory fetches one page of a shared directory from the given
// endpoint base. Transport failures and non-2xx statuses return a
// *TransportError; the logical envelope is returned as-is and must be
// validated with CheckResponse.
func (c *Client) ListShareDirectory(ctx context.Context, base string, p ListPayload) (*ListResponse, error) {
	q := url.Values{}
	q.Set("share_code", p.ShareCode)
	q.Set("receive_code", p.ReceiveCode)
	q.Set("cid", p.CID)
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	q.Set("o", p.Order)
	q.Set("asc", strconv.Itoa(p.Asc))
	reqURL := base + snapPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: reqURL, Err: err}
	}

	var listing ListResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &TransportError{URL: reqURL, Err: fmt.Errorf("decode listing: %w", err)}
	}
	return &listing, nil
}

// CheckResponse validates the logical envelope of a listing response.
// A false State means the provider rejected the call (bad share code,
// expired receive code, throttling) and returns a *ProviderError.
func CheckResponse(resp *ListResponse) error {
	if resp == nil {
		return &ProviderError{Message: "empty response"}
	}
	if !resp.State {
		return &ProviderError{Errno: resp.Errno, Message: resp.Message}
	}
	return nil
}
