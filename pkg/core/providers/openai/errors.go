package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/taskvoice/pkg/core"
)

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (p *Provider) parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error *apiErrorBody `json:"error"`
	}
	var e *core.Error
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		e = p.bodyError(envelope.Error, resp.StatusCode)
		e.Status = resp.StatusCode
		e.Kind = core.KindForStatus(resp.StatusCode)
	} else {
		e = core.StatusError(p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// bodyError converts a decoded error object. A numeric code in the HTTP
// error range is taken as the status; status is used otherwise.
func (p *Provider) bodyError(body *apiErrorBody, status int) *core.Error {
	code := ""
	switch v := body.Code.(type) {
	case string:
		code = v
	case float64:
		code = strconv.Itoa(int(v))
		if n := int(v); n >= 400 && n < 600 {
			status = n
		}
	}
	e := core.StatusError(p.name, status, body.Message)
	e.Code = code
	return e
}
