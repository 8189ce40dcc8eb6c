package update

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed check
type ErrorKind int

const (
	// TransportError covers dial, timeout and non-2xx responses
	TransportError ErrorKind = iota + 1
	// ParseError covers empty and malformed response bodies
	ParseError
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case ParseError:
		return "parse"
	default:
		return "unknown"
	}
}

// emptyBodyMessage is reported when the endpoint answered with nothing
const emptyBodyMessage = "Pull information from server failed!"

// CheckError is the failure side of a release fetch
type CheckError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CheckError) Error() string {
	return e.Message
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// ReleaseInfo is the part of a "latest release" document the checker uses
type ReleaseInfo struct {
	HTMLURL      string
	Name         string
	Body         string
	DownloadURLs []string
	TarballURL   string
	ZipballURL   string
}

// Notes returns the release body with escaped CRLF pairs turned into newlines
func (r *ReleaseInfo) Notes() string {
	body := strings.ReplaceAll(r.Body, `\r\n`, "\n")
	return strings.ReplaceAll(body, "\r\n", "\n")
}

// ParseRelease decodes a release document. Well-formed JSON of an
// unexpected shape is accepted: missing or mistyped fields read as empty.
func ParseRelease(data []byte) (*ReleaseInfo, error) {
	if len(data) == 0 {
		return nil, &CheckError{Kind: ParseError, Message: emptyBodyMessage}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CheckError{Kind: ParseError, Message: err.Error(), Err: err}
	}

	obj, _ := doc.(map[string]any)
	assets, _ := obj["assets"].([]any)

	return &ReleaseInfo{
		HTMLURL:      stringField(obj, "html_url"),
		Name:         stringField(obj, "name"),
		Body:         stringField(obj, "body"),
		DownloadURLs: ExtractBrowserDownloadURLs(assets),
		TarballURL:   stringField(obj, "tarball_url"),
		ZipballURL:   stringField(obj, "zipball_url"),
	}, nil
}

// ExtractBrowserDownloadURLs returns one URL per asset, in order. An asset
// without a string browser_download_url yields "".
func ExtractBrowserDownloadURLs(assets []any) []string {
	urls := make([]string, 0, len(assets))
	for _, a := range assets {
		obj, _ := a.(map[string]any)
		urls = append(urls, stringField(obj, "browser_download_url"))
	}
	return urls
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func transportError(format string, args ...any) *CheckError {
	err := fmt.Errorf(format, args...)
	return &CheckError{Kind: TransportError, Message: err.Error(), Err: err}
}
