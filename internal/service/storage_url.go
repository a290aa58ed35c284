package service

import (
	"net/url"
	"strings"
)

// storageProxyPrefix is where stored assets are served by this service.
const storageProxyPrefix = "/api/storage"

// StorageURL maps a backend asset reference to the URL browsers should use.
// An empty reference yields ("", false). Absolute http(s) URLs are returned
// unchanged in production; elsewhere a URL under /storage/ is routed through
// the storage proxy. A bare path becomes /api/storage/storage/<path>.
func StorageURL(raw string, production bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if production {
			return raw, true
		}
		u, err := url.Parse(raw)
		if err != nil || !strings.HasPrefix(u.Path, "/storage/") {
			return raw, true
		}
		out := storageProxyPrefix + u.EscapedPath()
		if u.RawQuery != "" {
			out += "?" + u.RawQuery
		}
		return out, true
	}

	if strings.HasPrefix(raw, storageProxyPrefix+"/") {
		return raw, true
	}
	p := strings.TrimPrefix(raw, "/")
	p = strings.TrimPrefix(p, "storage/")
	return storageProxyPrefix + "/storage/" + p, true
}
