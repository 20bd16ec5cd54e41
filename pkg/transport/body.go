package transport

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/getmockd/expectd/pkg/expectation"
)

// decodeBody classifies raw by its content type.
func decodeBody(contentType string, raw []byte) *expectation.Body {
	if len(raw) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	b := &expectation.Body{Raw: raw, ContentType: contentType}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		b.Type = expectation.BodyJSON
	case mediaType == "application/xml" || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml"):
		b.Type = expectation.BodyXML
	case mediaType == "application/x-www-form-urlencoded":
		b.Type = expectation.BodyParameters
	case strings.HasPrefix(mediaType, "text/") || utf8.Valid(raw):
		b.Type = expectation.BodyString
	default:
		b.Type = expectation.BodyBinary
	}
	return b
}

// encodeQuery writes parameters in order, escaping names and values.
func encodeQuery(m expectation.Multimap) string {
	var b strings.Builder
	for _, e := range m {
		values := e.Values
		if len(values) == 0 {
			values = []string{""}
		}
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(queryEscape(e.Name))
			b.WriteByte('=')
			b.WriteString(queryEscape(v))
		}
	}
	return b.String()
}
