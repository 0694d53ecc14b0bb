// Package metadata handles the XML control frames the data service
// interleaves with binary measurement frames.
//
// Only the fixed, shallow subset the service emits is understood:
//
//	<?xml version="1.0"?><service version="x.y.z" name="configurable"/>
//	<?xml version="1.0"?><node id="default" key="0"><node id="Hips" key="1"/>...</node>
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
)

var xmlMagic = []byte("<?xml")

const (
	requestPrefix = `<?xml version="1.0"?><configurable inactive="1">`
	requestSuffix = `</configurable>`
)

var (
	nodePattern    = regexp.MustCompile(`<node\s+id="([^"]+)"\s+key="(\d+)"`)
	servicePattern = regexp.MustCompile(`<service\b[^>]*>`)
	attrPattern    = regexp.MustCompile(`(\w+)="([^"]*)"`)
	requestPattern = regexp.MustCompile(`<configurable\b[^>]*>(.*)</configurable>`)
	tagPattern     = regexp.MustCompile(`<(\w+)\s*/>`)
)

var ErrNotChannelRequest = errors.New("metadata: not a channel request")

// IsMetadata reports whether b is an XML text frame rather than measurement
// data.
func IsMetadata(b []byte) bool {
	return bytes.HasPrefix(b, xmlMagic)
}

// ParseNodeNames returns the id of every <node> after the root, in document
// order. The result is never nil.
func ParseNodeNames(b []byte) []string {
	matches := nodePattern.FindAllSubmatch(b, -1)
	if len(matches) <= 1 {
		return []string{}
	}
	names := make([]string, 0, len(matches)-1)
	for _, m := range matches[1:] {
		names = append(names, string(m[1]))
	}
	return names
}

// MakeChannelRequest builds the configurable message that selects the
// channels in mask, in ascending bit order.
func MakeChannelRequest(mask channel.Mask) []byte {
	var buf bytes.Buffer
	buf.WriteString(requestPrefix)
	for _, c := range mask.Channels() {
		buf.WriteByte('<')
		buf.WriteString(channel.Name(c))
		buf.WriteString("/>")
	}
	buf.WriteString(requestSuffix)
	return buf.Bytes()
}

// Service is the greeting the data service sends right after connect.
type Service struct {
	Name    string
	Version string
}

// ParseService extracts the name and version attributes of the first
// <service> element.
func ParseService(b []byte) (Service, bool) {
	tag := servicePattern.Find(b)
	if tag == nil {
		return Service{}, false
	}
	var svc Service
	for _, m := range attrPattern.FindAllSubmatch(tag, -1) {
		switch string(m[1]) {
		case "name":
			svc.Name = string(m[2])
		case "version":
			svc.Version = string(m[2])
		}
	}
	return svc, true
}

// ParseChannelRequest is the service side of MakeChannelRequest.
func ParseChannelRequest(b []byte) (channel.Mask, error) {
	if !IsMetadata(b) {
		return 0, ErrNotChannelRequest
	}
	body := requestPattern.FindSubmatch(b)
	if body == nil {
		return 0, fmt.Errorf("%w: missing configurable element", ErrNotChannelRequest)
	}
	var names []string
	for _, m := range tagPattern.FindAllSubmatch(body[1], -1) {
		names = append(names, string(m[1]))
	}
	return channel.ParseMask(names)
}

// MakeNodeList builds the topology message naming each node under a
// "default" root, keys numbered from 1.
func MakeNodeList(names []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><node id="default" key="0">`)
	for i, name := range names {
		buf.WriteString(`<node id="`)
		buf.WriteString(html.EscapeString(name))
		buf.WriteString(`" key="`)
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteString(`"/>`)
	}
	buf.WriteString(`</node>`)
	return buf.Bytes()
}

// MakeService builds the greeting sent right after a client connects.
func MakeService(svc Service) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0"?><service version="%s" name="%s"/>`,
		html.EscapeString(svc.Version), html.EscapeString(svc.Name)))
}
