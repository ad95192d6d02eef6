// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared outbound client. One transport for the whole
// process so keep-alive connections are reused across the very chatty
// per-title and per-friend fetches; the timeout is per call and doubles as
// the per-item deadline under the degrade-don't-abort policy.
var HTTPClient = &http.Client{
	Timeout: 8 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}
