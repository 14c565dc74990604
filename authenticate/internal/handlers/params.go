package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// params is the flattened view of a request: query string, then form or
// JSON body. Body values win over query values.
type params map[string]string

func readParams(w http.ResponseWriter, r *http.Request) (params, error) {
	p := params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return p, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
		}
		for k, v := range body {
			switch val := v.(type) {
			case nil:
			case string:
				p[k] = val
			case bool:
				p[k] = strconv.FormatBool(val)
			case json.Number:
				p[k] = val.String()
			default:
				return nil, fmt.Errorf("%w: field %q must be a scalar", errBadRequest, k)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("%w: invalid form body: %v", errBadRequest, err)
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: invalid form body: %v", errBadRequest, err)
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}
	}
	return p, nil
}

func (p params) require(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s", errBadRequest, name)
	}
	return v, nil
}

func (p params) requireBool(name string) (bool, error) {
	raw, err := p.require(name)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errBadRequest, name)
	}
	return b, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// optionalTime parses name as RFC 3339, "YYYY-MM-DD HH:MM[:SS]" in loc, or
// Unix milliseconds. An absent value yields nil.
func (p params) optionalTime(name string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(p[name])
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		return &t, nil
	}
	return nil, fmt.Errorf("%w: %s is not a recognised time", errBadRequest, name)
}
