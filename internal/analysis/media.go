package analysis

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
)

const DefaultContentType = "video/mp4"

// SourceKind tells which MediaReference variant is active.
type SourceKind string

const (
	SourceInline SourceKind = "inline"
	SourceURL    SourceKind = "url"
)

// Submission is the raw inbound request payload before admission.
// Size is the declared length of the inline part; when zero, len(Data) is
// used. Callers that stop reading an oversized part set Size and leave Data
// truncated or nil.
type Submission struct {
	VideoURL    string
	Data        []byte
	Size        int64
	ContentType string
	Filename    string
}

// MediaReference is exactly one of an inline payload or a remote locator.
type MediaReference struct {
	Kind        SourceKind
	URL         string
	Data        []byte
	ContentType string
	Filename    string
	Size        int64
}

// Gate admits submissions before any network call is made.
type Gate struct {
	maxInlineBytes int64
	hardMaxBytes   int64
}

func NewGate(maxInlineBytes, hardMaxBytes int64) *Gate {
	return &Gate{maxInlineBytes: maxInlineBytes, hardMaxBytes: hardMaxBytes}
}

// Admit classifies a submission. A URL-shaped string always wins, even if
// inline bytes were also sent; the provider is responsible for fetching it.
func (g *Gate) Admit(sub Submission) (MediaReference, error) {
	if u := strings.TrimSpace(sub.VideoURL); IsAbsoluteURL(u) {
		return MediaReference{Kind: SourceURL, URL: u}, nil
	}

	size := sub.Size
	if size == 0 {
		size = int64(len(sub.Data))
	}
	if size <= 0 {
		return MediaReference{}, validationError(ReasonMissingMedia, MsgMissingMedia)
	}

	if size > g.hardMaxBytes {
		return MediaReference{}, validationError(ReasonUnsupportedSize,
			fmt.Sprintf("The video is %s, which exceeds the maximum supported size of %s.",
				humanize.Bytes(uint64(size)), humanize.IBytes(uint64(g.hardMaxBytes))))
	}

	if size > g.maxInlineBytes {
		return MediaReference{}, validationError(ReasonPayloadTooLarge,
			fmt.Sprintf("The video is larger than the %s upload limit. Upload it somewhere reachable and send its URL as video_url instead.",
				humanize.Bytes(uint64(g.maxInlineBytes))))
	}

	if len(sub.Data) == 0 {
		return MediaReference{}, validationError(ReasonMissingMedia, MsgMissingMedia)
	}

	contentType := strings.TrimSpace(sub.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DefaultContentType
	}

	return MediaReference{
		Kind:        SourceInline,
		Data:        sub.Data,
		ContentType: contentType,
		Filename:    sub.Filename,
		Size:        int64(len(sub.Data)),
	}, nil
}

// IsAbsoluteURL reports whether s is an absolute http(s) URL with a host.
func IsAbsoluteURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
