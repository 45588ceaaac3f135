package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildURL derives the push-channel URL from the deployment base URL.
// http becomes ws and https becomes wss; path is appended to any base path;
// the access token travels as the "token" query parameter.
func BuildURL(base, path, accessToken string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBaseURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrBadBaseURL)
	}

	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = url.Values{tokenParam: []string{accessToken}}.Encode()
	u.Fragment = ""
	u.User = nil

	return u.String(), nil
}
