package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

const jsonContentType = "application/json; charset=utf-8"

// Reply is what the gateway writes back for one proxied call.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// Reply maps the result of Do onto a client response.
//
// A downstream answer keeps its status. Anything the breaker intercepted
// (rejection, timeout, transport error) becomes the 503 fallback.
func (c *Client) Reply(resp *Response, err error) *Reply {
	var se *StatusError
	switch {
	case err == nil && resp != nil:
		return c.relay(resp)
	case errors.As(err, &se):
		return c.relay(se.Response)
	default:
		if err == nil {
			err = errors.New("empty downstream response")
		}
		return envelopeReply(http.StatusServiceUnavailable, c.breaker.Fallback(err).Envelope())
	}
}

func (c *Client) relay(resp *Response) *Reply {
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		switch {
		case resp.Status == http.StatusNoContent:
			return &Reply{Status: http.StatusNoContent}
		case isSuccess(resp.Status):
			return envelopeReply(resp.Status, util.Success(nil))
		default:
			return envelopeReply(resp.Status, util.Failure(util.CodeForStatus(resp.Status), ""))
		}
	}

	if !gjson.ValidBytes(body) {
		c.metrics.recordError(c.service, "invalid_body")
		c.logger.Warn("downstream returned a non-JSON body",
			observability.Int("status", resp.Status),
			observability.Int("bytes", len(body)),
		)
		return envelopeReply(http.StatusBadGateway,
			util.Failure(util.CodeInternal, "invalid response from "+c.breaker.DisplayName()))
	}

	// Already an envelope.
	if gjson.GetBytes(body, "success").IsBool() {
		return &Reply{Status: resp.Status, ContentType: jsonContentType, Body: body}
	}

	if isSuccess(resp.Status) {
		return envelopeReply(resp.Status, util.Success(json.RawMessage(body)))
	}
	return envelopeReply(resp.Status, util.Failure(util.CodeForStatus(resp.Status), downstreamMessage(body)))
}

// downstreamMessage picks a human readable message out of an error body.
func downstreamMessage(body []byte) string {
	for _, path := range []string{"error.message", "message", "error"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

func envelopeReply(status int, env util.Envelope) *Reply {
	data, err := json.Marshal(env)
	if err != nil {
		return &Reply{
			Status:      http.StatusInternalServerError,
			ContentType: jsonContentType,
			Body:        []byte(`{"success":false,"error":{"code":"INTERNAL_SERVER_ERROR","message":"internal server error"}}`),
		}
	}
	return &Reply{Status: status, ContentType: jsonContentType, Body: data}
}
