// Package ipfs implements contentstore.Store against the HTTP API of an
// IPFS (kubo) node.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/tendermint/reviewattest/internal/contentstore"
	"github.com/tendermint/reviewattest/libs/log"
	"github.com/tendermint/reviewattest/types"
)

var _ contentstore.Store = (*Client)(nil)

// Client talks to the /api/v0 endpoints of an IPFS node.
type Client struct {
	base   *url.URL
	client *http.Client
	logger log.Logger
}

// NewClient returns a client for the node at addr (for example
// http://127.0.0.1:5001). Timeouts come from the caller's context.
func NewClient(addr string, logger log.Logger) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid ipfs address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ipfs address %q: scheme must be http or https", addr)
	}
	return &Client{
		base:   u,
		client: &http.Client{},
		logger: logger,
	}, nil
}

type addResponse struct {
	Name string
	Hash string
	Size string
}

type apiError struct {
	Message string
	Code    int
	Type    string
}

// Put adds data as a single raw-leaf CIDv1 block and pins it. The node must
// name it as contentstore.ComputeCID does.
func (c *Client) Put(ctx context.Context, data []byte) (string, error) {
	if err := contentstore.CheckSize(data); err != nil {
		return "", err
	}
	want, err := contentstore.ComputeCID(data)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("cid-version", "1")
	q.Set("raw-leaves", "true")
	q.Set("hash", "sha2-256")
	q.Set("chunker", fmt.Sprintf("size-%d", contentstore.MaxObjectSize))
	q.Set("pin", "true")

	resp, err := c.post(ctx, "add", q, mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out addResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding add response: %v", types.ErrContentStoreUnavailable, err)
	}
	if err := contentstore.ValidateID(out.Hash); err != nil {
		return "", fmt.Errorf("%w: node returned %v", types.ErrContentStoreUnavailable, err)
	}

	if out.Hash != want {
		c.logger.Error("ipfs named the object differently", "cid", out.Hash, "want", want, "size", len(data))
		return "", fmt.Errorf("%w: node returned cid %s, want %s", types.ErrContentStoreUnavailable, out.Hash, want)
	}
	return out.Hash, nil
}

// Get reads the object named id.
func (c *Client) Get(ctx context.Context, id string) ([]byte, error) {
	if err := contentstore.ValidateID(id); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("arg", id)

	resp, err := c.post(ctx, "cat", q, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, contentstore.MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrContentStoreUnavailable, id, err)
	}
	if err := contentstore.CheckSize(data); err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	return data, nil
}

// post calls /api/v0/<cmd>. A non-2xx answer is turned into an error and
// the body closed; otherwise the caller owns the body.
func (c *Client) post(ctx context.Context, cmd string, q url.Values, contentType string, body io.Reader) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v0/" + cmd
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	var apiErr apiError
	raw, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusNotFound || isNotFoundMessage(apiErr.Message) {
		return nil, fmt.Errorf("ipfs %s: %s: %w", cmd, apiErr.Message, types.ErrNotFound)
	}
	return nil, fmt.Errorf("%w: ipfs %s returned %d: %s",
		types.ErrContentStoreUnavailable, cmd, resp.StatusCode, apiErr.Message)
}

func isNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no link named")
}

// classify maps transport failures to ErrContentStoreUnavailable with a
// message that says whether the node could be reached at all.
func classify(err error) error {
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: ipfs request timed out", types.ErrContentStoreUnavailable)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: ipfs request canceled", types.ErrContentStoreUnavailable)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("%w: cannot connect to IPFS node, is the daemon running? (%v)",
			types.ErrContentStoreUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", types.ErrContentStoreUnavailable, err)
	}
}
