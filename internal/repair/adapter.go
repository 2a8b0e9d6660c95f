// Package repair runs remediation actions against monitored sites and records
// every attempt as a RepairLog.
package repair

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/leego972/sitewarden/internal/domain"
)

// Adapter performs remediation for one access method. Implementations report
// failures through the returned output and success flag.
type Adapter interface {
	Method() domain.AccessMethod
	Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, customCommand string) (output string, success bool)
}

// Verifier is implemented by adapters that can check their credentials
// without changing anything.
type Verifier interface {
	Verify(ctx context.Context, site *domain.MonitoredSite) (output string, ok bool)
}

// MaxOutputBytes caps the output stored on a repair log.
const MaxOutputBytes = 8 << 10

// Truncate shortens s to at most MaxOutputBytes without splitting a UTF-8
// sequence.
func Truncate(s string) string {
	if len(s) <= MaxOutputBytes {
		return s
	}
	cut := MaxOutputBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}

// Sanitize makes adapter output storable in a TEXT column and truncates it.
// Invalid UTF-8 becomes U+FFFD and NUL bytes are dropped.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	return Truncate(s)
}

// ResponseOutput describes an HTTP response for a repair log.
func ResponseOutput(what string, status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("%s: HTTP %d %s", what, status, http.StatusText(status))
	}
	return fmt.Sprintf("%s: HTTP %d %s\n%s", what, status, http.StatusText(status), text)
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Do sends req and describes the response for a repair log. Success is a 2xx
// status.
func Do(client *http.Client, req *http.Request, what string) (string, bool) {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("%s: request failed: %v", what, err), false
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxOutputBytes))
	if err != nil {
		return fmt.Sprintf("%s: read response: %v", what, err), false
	}
	return ResponseOutput(what, resp.StatusCode, body), IsSuccess(resp.StatusCode)
}
