// Package handlers – request decoding.
//
// Every endpoint declares its parameter set explicitly. Signed endpoints
// carry the triple (username, timestamp, signature) plus their own fields;
// the signature covers every submitted parameter except the signature itself,
// with list-valued parameters canonicalised the same way clients serialise
// them before signing.
package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/signature"
)

// listParams are signed after stripping the outer JSON array brackets, a
// compatibility rule of the wire protocol.
var listParams = map[string]bool{"tags": true, "receivers": true}

// collectParams gathers all submitted parameters (form or query) into the
// signed set, excluding the signature itself and any file parts.
func collectParams(c *gin.Context) map[string]string {
	if c.Request.PostForm == nil {
		_ = c.Request.ParseMultipartForm(32 << 10) // also parses url-encoded bodies
	}
	params := make(map[string]string)
	for name, vals := range c.Request.URL.Query() {
		if len(vals) > 0 {
			params[name] = vals[0]
		}
	}
	for name, vals := range c.Request.PostForm {
		if len(vals) > 0 {
			params[name] = vals[0]
		}
	}
	delete(params, "signature")
	for name := range params {
		if listParams[name] {
			params[name] = signature.CanonicalList(params[name])
		}
	}
	return params
}

// signedRequest extracts the authentication triple and the full signed set.
// A missing triple is a transport-level 400; the handler must return
// immediately when ok is false.
func signedRequest(c *gin.Context) (rd services.RequestData, ok bool) {
	params := collectParams(c)
	for _, name := range []string{"username", "timestamp"} {
		if params[name] == "" {
			badRequest(c, name)
			return rd, false
		}
	}
	sig := c.PostForm("signature")
	if sig == "" {
		sig = c.Query("signature")
	}
	if sig == "" {
		badRequest(c, "signature")
		return rd, false
	}
	return services.RequestData{
		Username:  params["username"],
		Timestamp: params["timestamp"],
		Signature: sig,
		Params:    params,
	}, true
}

// requireParam fetches one declared parameter, answering 400 when absent.
func requireParam(c *gin.Context, name string) (string, bool) {
	v := c.PostForm(name)
	if v == "" {
		v = c.Query(name)
	}
	if v == "" {
		badRequest(c, name)
		return "", false
	}
	return v, true
}

// declaredParam fetches a declared parameter that may legitimately be empty.
// Absence is still a transport-level 400; the empty string is handed to the
// validators like any other value.
func declaredParam(c *gin.Context, params map[string]string, name string) (string, bool) {
	v, ok := params[name]
	if !ok {
		badRequest(c, name)
		return "", false
	}
	return v, true
}

// parseBoolParam accepts the canonical lowercase forms only.
func parseBoolParam(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, apperr.InvalidParameter(name)
}

// parseListParam decodes a JSON array of strings.
func parseListParam(name, v string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil || len(out) == 0 {
		return nil, apperr.InvalidParameter(name)
	}
	return out, nil
}

// paging reads optional page/page_size parameters; zero means defaults.
func paging(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultPostForm("page", c.Query("page")))
	pageSize, _ = strconv.Atoi(c.DefaultPostForm("page_size", c.Query("page_size")))
	return page, pageSize
}

// olderThan reads the optional older_than cursor (unix seconds); absent or
// unparsable means "from now".
func olderThan(c *gin.Context) time.Time {
	raw := c.DefaultPostForm("older_than", c.Query("older_than"))
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().UTC()
}
