package fetcher

import (
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const defaultEncoding = "utf-8"

// bodyDeclaredEncodingScanLimit bounds how much of the document is scanned
// for an embedded charset declaration.
const bodyDeclaredEncodingScanLimit = 4096

var (
	metaCharsetPattern = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([\w.:-]+)`)
	xmlDeclPattern     = regexp.MustCompile(`(?i)^\s*<\?xml[^>]+encoding\s*=\s*["']?([\w.:-]+)`)
)

// encodeBody determines the body bytes and text encoding for page content:
// the charset declared in the Content-Type header wins, then a charset
// declared in the body itself, then UTF-8. Charsets that cannot represent
// the text are skipped.
func encodeBody(headers http.Header, text string) ([]byte, string) {
	for _, name := range possibleEncodings(headers, text) {
		enc, err := htmlindex.Get(name)
		if err != nil {
			continue
		}
		body, err := enc.NewEncoder().Bytes([]byte(text))
		if err != nil {
			continue
		}
		return body, name
	}
	return []byte(text), defaultEncoding
}

func possibleEncodings(headers http.Header, text string) []string {
	var candidates []string
	if name := headerDeclaredEncoding(headers); name != "" {
		candidates = append(candidates, name)
	}
	if name := bodyDeclaredEncoding(text); name != "" {
		candidates = append(candidates, name)
	}
	return candidates
}

// headerDeclaredEncoding extracts the charset parameter of the Content-Type
// header, empty when absent or unparseable.
func headerDeclaredEncoding(headers http.Header) string {
	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// bodyDeclaredEncoding extracts a charset declared inside the document: an
// XML declaration or a meta charset / meta http-equiv tag near the top.
func bodyDeclaredEncoding(text string) string {
	head := text
	if len(head) > bodyDeclaredEncodingScanLimit {
		head = head[:bodyDeclaredEncodingScanLimit]
	}
	if m := xmlDeclPattern.FindStringSubmatch(head); m != nil {
		return strings.ToLower(m[1])
	}
	if m := metaCharsetPattern.FindStringSubmatch(head); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// decodeBody converts a caller-supplied body from its declared charset into
// a string for the driver to send.
func decodeBody(body []byte, encodingName string) (string, error) {
	if encodingName == "" || strings.EqualFold(encodingName, defaultEncoding) ||
		strings.EqualFold(encodingName, "utf8") {
		return string(body), nil
	}
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return "", fmt.Errorf("unknown body encoding %q: %w", encodingName, err)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decoding body as %q: %w", encodingName, err)
	}
	return string(decoded), nil
}

// headersFromDriver converts a driver header map into the caller's header
// representation, stripping Content-Encoding: the body handed back is
// already decoded.
func headersFromDriver(raw map[string]string) http.Header {
	headers := make(http.Header, len(raw))
	for name, value := range raw {
		if strings.EqualFold(name, "content-encoding") {
			continue
		}
		headers.Set(name, value)
	}
	return headers
}
