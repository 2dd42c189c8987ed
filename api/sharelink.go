package api

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Share links look like
//
//	<base>/s/<id>#v1.<base64url(url_key)>
//
// The fragment never leaves the recipient's client: browsers do not send
// fragments in requests, so the URL key stays out of server logs and
// transport captures even over plain HTTP.
const (
	sharePathPrefix     = "/s/"
	shareFragmentPrefix = "v1."
)

// ShareURL builds a full share link for a stored secret.
func ShareURL(baseURL string, id interfaces.SecretID, urlKey []byte) (string, error) {
	if len(urlKey) != envelope.URLKeySize {
		return "", fmt.Errorf("%w: url key must be %d bytes", interfaces.ErrValidation, envelope.URLKeySize)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty secret id", interfaces.ErrValidation)
	}
	return strings.TrimRight(baseURL, "/") + sharePathPrefix + url.PathEscape(id.String()) +
		"#" + shareFragmentPrefix + base64.RawURLEncoding.EncodeToString(urlKey), nil
}

// ParseShareURL extracts the secret id and URL key from a share link.
func ParseShareURL(link string) (interfaces.SecretID, []byte, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil, fmt.Errorf("%w: malformed share link: %w", interfaces.ErrValidation, err)
	}

	idx := strings.LastIndex(u.Path, sharePathPrefix)
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: share link path missing %q segment", interfaces.ErrValidation, sharePathPrefix)
	}
	id, err := url.PathUnescape(u.Path[idx+len(sharePathPrefix):])
	if err != nil || id == "" || strings.Contains(id, "/") {
		return "", nil, fmt.Errorf("%w: invalid secret id in share link", interfaces.ErrValidation)
	}

	frag := u.Fragment
	if !strings.HasPrefix(frag, shareFragmentPrefix) {
		return "", nil, fmt.Errorf("%w: share link fragment missing %q prefix", interfaces.ErrValidation, shareFragmentPrefix)
	}
	urlKey, err := base64.RawURLEncoding.DecodeString(frag[len(shareFragmentPrefix):])
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid url key encoding in share link", interfaces.ErrValidation)
	}
	if len(urlKey) != envelope.URLKeySize {
		return "", nil, fmt.Errorf("%w: url key must decode to %d bytes", interfaces.ErrValidation, envelope.URLKeySize)
	}

	return interfaces.SecretID(id), urlKey, nil
}
