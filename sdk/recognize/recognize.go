package recognize

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HashHeader carries the content hash of a recognition request.
const HashHeader = "x-itraff-hash"

// ContentHash is the hex MD5 of apiKey followed by the image bytes.
func ContentHash(apiKey string, data []byte) string {
	h := md5.New()
	h.Write([]byte(apiKey))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) recognizeURL(clientID string, mode Mode, all bool) string {
	u := c.recognizeEndpoint + mode.urlSegment()
	if all {
		u += "all/"
	}
	return u + url.PathEscape(clientID)
}

// Recognize submits the image file at path. With all set the service returns
// every match instead of the best one.
func (c *Client) Recognize(ctx context.Context, path string, mode Mode, all bool) (*RecognitionResult, error) {
	data, err := c.readImage("recognize", path)
	if err != nil {
		return nil, err
	}
	return c.RecognizeBytes(ctx, data, mode, all)
}

// RecognizeSimple recognizes in Single mode with all matches and returns
// every member of the response as a string.
func (c *Client) RecognizeSimple(ctx context.Context, path string) (map[string]string, error) {
	res, err := c.Recognize(ctx, path, Single, true)
	if err != nil {
		return nil, err
	}
	return res.Flatten(), nil
}

// RecognizeBytes submits image data. Unless disabled with WithImageLimits,
// images outside the mode limits fail with ErrImageLimits before any request
// is sent.
func (c *Client) RecognizeBytes(ctx context.Context, data []byte, mode Mode, all bool) (*RecognitionResult, error) {
	const operation = "recognize"
	logger, requestID := c.operationLogger(operation)

	if c.checkLimits {
		if err := CheckImageLimits(data, mode); err != nil {
			wrapped := newOperationError(operation, requestID, ErrImageLimits, err)
			logger.Warn("image rejected before upload", zap.Error(wrapped))
			return nil, wrapped
		}
	}

	session := c.session.Load()
	target := c.recognizeURL(session.ClientID, mode, all)
	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HashHeader, ContentHash(session.APIKey, data)).
		SetHeader("Content-Type", "image/jpeg").
		SetHeader("Accept", "application/json").
		SetBody(data).
		Post(target)
	if err != nil {
		wrapped := newOperationError(operation, requestID, ErrTransport, err)
		logger.Error("recognition request failed", zap.Error(wrapped), zap.String("url", target))
		return nil, wrapped
	}
	if !resp.IsSuccess() {
		wrapped := newOperationError(operation, requestID, ErrTransport, &StatusError{StatusCode: resp.StatusCode()})
		logger.Error("recognition request rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode()))
		return nil, wrapped
	}

	res, err := ParseRecognitionResult(resp.Body())
	if err != nil {
		wrapped := newOperationError(operation, requestID, ErrMalformedResponse, err)
		logger.Error("failed to decode recognition response", zap.Error(wrapped))
		return nil, wrapped
	}

	logger.Debug("recognition completed",
		zap.Stringer("mode", mode),
		zap.Bool("all", all),
		zap.Duration("latency", time.Since(started)),
	)
	return res, nil
}
