package stdlib

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerNet installs the HTTP get/post pair, gated behind an
// allowlist of permitted hosts. These are the only primitives that
// reach off the host entirely, so the allowlist check sits at the
// foreign-function boundary rather than inside the dispatcher.
func registerNet(m *runtime.Manager, allowlist []string) {
	allowed := make(map[string]bool, len(allowlist))
	for _, h := range allowlist {
		allowed[h] = true
	}
	register(m, "net.http_get", httpGetFn(allowed))
	register(m, "net.http_post", httpPostFn(allowed))
}

func checkAllowed(allowed map[string]bool, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return runtime.ArgumentError("invalid URL: %v", err)
	}
	if !allowed[u.Hostname()] {
		return runtime.ArgumentError("host %q is not in the net allowlist", u.Hostname())
	}
	return nil
}

func httpGetFn(allowed map[string]bool) value.ForeignFunc {
	return func(h value.Handle) error {
		rawURL, err := argString(h, 0)
		if err != nil {
			return err
		}
		if err := checkAllowed(allowed, rawURL); err != nil {
			return err
		}
		resp, err := http.Get(rawURL)
		if err != nil {
			return runtime.ArgumentError("HTTP GET failed: %v", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return runtime.ArgumentError("failed to read response body: %v", err)
		}
		return pushString(h, string(body))
	}
}

func httpPostFn(allowed map[string]bool) value.ForeignFunc {
	return func(h value.Handle) error {
		rawURL, err := argString(h, 0)
		if err != nil {
			return err
		}
		body, err := argString(h, 1)
		if err != nil {
			return err
		}
		if err := checkAllowed(allowed, rawURL); err != nil {
			return err
		}
		resp, err := http.Post(rawURL, "text/plain", strings.NewReader(body))
		if err != nil {
			return runtime.ArgumentError("HTTP POST failed: %v", err)
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return runtime.ArgumentError("failed to read response body: %v", err)
		}
		return pushString(h, string(respBody))
	}
}
