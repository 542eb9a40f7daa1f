package checker

import (
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// CheckOptions holds parameters for one probe
type CheckOptions struct {
	URL         string
	Timeout     time.Duration
	ExpectedMin int
	ExpectedMax int
}

// Result is the outcome of a probe
type Result struct {
	OK   bool
	Code int
	MS   *int
	Err  string
	// CertExpiry is the leaf certificate's NotAfter for https targets.
	CertExpiry time.Time
}

// Check probes a monitor target. tcp:// URLs are dialed, everything else
// is fetched over HTTP and judged by status code.
func Check(opts CheckOptions) Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	minOK, maxOK := opts.ExpectedMin, opts.ExpectedMax
	if minOK == 0 && maxOK == 0 {
		minOK, maxOK = 200, 399
	}

	if strings.HasPrefix(opts.URL, "tcp://") {
		addr := strings.TrimPrefix(opts.URL, "tcp://")
		t0 := time.Now()
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			log.Printf("tcp check error addr=%s err=%v", addr, err)
			return Result{Err: err.Error()}
		}
		d := int(time.Since(t0).Milliseconds())
		_ = conn.Close()
		return Result{OK: true, MS: &d}
	}

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	t0 := time.Now()
	resp, err := client.Get(opts.URL)
	if err != nil {
		log.Printf("http check error url=%s err=%v", SanitizeError(opts.URL), SanitizeError(err.Error()))
		return Result{Err: err.Error()}
	}
	d := int(time.Since(t0).Milliseconds())
	defer resp.Body.Close()

	res := Result{
		OK:   resp.StatusCode >= minOK && resp.StatusCode <= maxOK,
		Code: resp.StatusCode,
		MS:   &d,
	}
	if resp.TLS != nil {
		res.CertExpiry = leafExpiry(resp.TLS)
	}
	return res
}

func leafExpiry(cs *tls.ConnectionState) time.Time {
	if len(cs.PeerCertificates) == 0 {
		return time.Time{}
	}
	return cs.PeerCertificates[0].NotAfter
}

var (
	queryPattern  = regexp.MustCompile(`\?[^\s"']*`)
	secretPattern = regexp.MustCompile(`(?i)(token|api[_-]?key|password|secret)[=:]\s*[^\s&"']+`)
	userInfo      = regexp.MustCompile(`://[^/@\s"']+@`)
)

// maxErrorLen bounds error text shown in tooltips and stored with samples.
const maxErrorLen = 200

// SanitizeError strips query strings, credentials and token-like values
// from probe error text so URLs with secrets never reach the UI or storage.
func SanitizeError(msg string) string {
	if msg == "" {
		return ""
	}
	out := userInfo.ReplaceAllString(msg, "://")
	out = queryPattern.ReplaceAllString(out, "")
	out = secretPattern.ReplaceAllString(out, "$1=***")
	out = strings.TrimSpace(out)
	if len(out) > maxErrorLen {
		out = out[:maxErrorLen] + "…"
	}
	return out
}
