package ingest

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"whatsingest/pkg/ingest/types"
)

// Execute issues one authenticated request with rate limiting and a
// bounded transport-retry budget. The returned response may be nil: the
// client was unauthenticated, credentials were revoked mid-flight, or
// the retry budget ran out on transport errors. Non-2xx responses that
// survive the budget are returned as-is for the caller to classify.
//
// maxRetries counts total attempts, not re-attempts.
func (c *Client) Execute(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
	if !c.authenticated {
		c.logger.WithField("url", requestURL).Warn("Refusing request on unauthenticated client")
		return nil
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := c.buildRequest(ctx, method, requestURL, opts)
		if err != nil {
			c.logger.WithField("url", requestURL).WithError(err).Error("Failed to build request")
			return nil
		}

		c.limiter.WaitIfNeeded()

		httpClient := c.httpClient
		if opts != nil && opts.Stream {
			httpClient = c.streamClient
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"url":     requestURL,
				"attempt": attempt + 1,
			}).WithError(err).Warn("Request failed")
			if attempt < c.maxRetries-1 {
				c.sleep(time.Duration(1<<attempt) * time.Second)
				continue
			}
			return nil
		}

		switch resp.StatusCode {
		case http.StatusOK:
			c.limiter.ResetBackoff()
			return resp

		case http.StatusTooManyRequests:
			// Backoff runs on every 429, including the terminal one, so
			// the doubling survives into the next call.
			c.limiter.HandleRateLimitError()
			if attempt < c.maxRetries-1 {
				resp.Body.Close()
				continue
			}
			return resp

		case http.StatusUnauthorized, http.StatusForbidden:
			// Credentials went bad after a successful identity check; the
			// whole client flips unauthenticated until re-authenticated.
			resp.Body.Close()
			c.authenticated = false
			c.logger.WithFields(logrus.Fields{
				"url":    requestURL,
				"status": resp.StatusCode,
			}).Error("Credentials rejected, client is no longer authenticated")
			return nil

		default:
			if attempt < c.maxRetries-1 {
				resp.Body.Close()
				c.logger.WithFields(logrus.Fields{
					"url":     requestURL,
					"status":  resp.StatusCode,
					"attempt": attempt + 1,
				}).Warn("Unexpected status, retrying")
				c.sleep(time.Duration(1<<attempt) * time.Second)
				continue
			}
			return resp
		}
	}

	return nil
}

// buildRequest constructs a fresh request per attempt; the body is
// replayed from the options' byte slice.
func (c *Client) buildRequest(ctx context.Context, method, requestURL string, opts *types.RequestOptions) (*http.Request, error) {
	if opts != nil && len(opts.Query) > 0 {
		u, err := url.Parse(requestURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for key, values := range opts.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
		requestURL = u.String()
	}

	var body *bytes.Reader
	if opts != nil && len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, requestURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, requestURL, nil)
	}
	if err != nil {
		return nil, err
	}

	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	c.provider.Sign(req)
	return req, nil
}
