package namecheap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"gitlab.bluewillows.net/root/ncddns/pkg/publicip"
)

// ErrMalformed is returned when a response body is not an interface-response
// document.
var ErrMalformed = errors.New("malformed update response")

// ErrorEntry is one error reported by the update API.
type ErrorEntry struct {
	// Code is the ResponseNumber paired with the error, verbatim.
	Code        string
	Description string
}

// Response is the parsed body of an update call.
type Response struct {
	Command  string
	IP       string
	ErrCount int
	Errors   []ErrorEntry
	Done     bool
}

// Failed reports whether the provider rejected the update.
func (r Response) Failed() bool {
	return r.ErrCount > 0
}

// FirstError returns the error used to describe a failed update. A response
// that claims errors but lists none yields a generic description.
func (r Response) FirstError() ErrorEntry {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return ErrorEntry{Description: fmt.Sprintf("provider reported %d error(s) without details", r.ErrCount)}
}

// EchoedIP returns the address the provider says it set, if it sent a valid one.
func (r Response) EchoedIP() (netip.Addr, bool) {
	if r.IP == "" {
		return netip.Addr{}, false
	}
	addr, err := publicip.Parse(r.IP)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

type xmlResponse struct {
	XMLName   xml.Name           `xml:"interface-response"`
	Command   string             `xml:"Command"`
	IP        string             `xml:"IP"`
	ErrCount  *string            `xml:"ErrCount"`
	Errors    xmlErrors          `xml:"errors"`
	Responses []xmlResponseEntry `xml:"responses>response"`
	Done      string             `xml:"Done"`
}

// xmlErrors holds Err1..ErrN, whose element names are not fixed.
type xmlErrors struct {
	Entries []xmlElement `xml:",any"`
}

type xmlElement struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type xmlResponseEntry struct {
	ResponseNumber string `xml:"ResponseNumber"`
	ResponseString string `xml:"ResponseString"`
	Description    string `xml:"Description"`
}

// ParseResponse parses an update response body. It has no side effects.
//
// Real responses declare encoding="utf-16" while sending UTF-8, so the
// declared charset is ignored; a byte order mark, when present, decides the
// encoding instead.
func ParseResponse(body []byte) (Response, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	dec := xml.NewDecoder(bytes.NewReader(decoded))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var raw xmlResponse
	if err := dec.Decode(&raw); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	resp := Response{
		Command: strings.TrimSpace(raw.Command),
		IP:      strings.TrimSpace(raw.IP),
		Done:    strings.EqualFold(strings.TrimSpace(raw.Done), "true"),
	}

	// The n-th Err element pairs with the n-th response, ignoring any other
	// children of <errors>.
	n := 0
	for _, e := range raw.Errors.Entries {
		if !strings.HasPrefix(e.XMLName.Local, "Err") {
			continue
		}
		entry := ErrorEntry{Description: strings.TrimSpace(e.Text)}
		if n < len(raw.Responses) {
			r := raw.Responses[n]
			entry.Code = strings.TrimSpace(r.ResponseNumber)
			if entry.Description == "" {
				entry.Description = firstNonEmpty(r.Description, r.ResponseString)
			}
		}
		resp.Errors = append(resp.Errors, entry)
		n++
	}

	// Errors without an Err element still carry a code and text.
	if len(resp.Errors) == 0 {
		for _, r := range raw.Responses {
			if code := strings.TrimSpace(r.ResponseNumber); code != "" && code != "0" {
				resp.Errors = append(resp.Errors, ErrorEntry{
					Code:        code,
					Description: firstNonEmpty(r.Description, r.ResponseString),
				})
			}
		}
	}

	switch {
	case raw.ErrCount == nil:
		resp.ErrCount = len(resp.Errors)
	default:
		n, err := strconv.Atoi(strings.TrimSpace(*raw.ErrCount))
		if err != nil || n < 0 {
			return Response{}, fmt.Errorf("%w: invalid ErrCount %q", ErrMalformed, *raw.ErrCount)
		}
		resp.ErrCount = n
	}

	return resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
