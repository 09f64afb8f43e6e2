package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// ProxyHandler manages reverse proxying for preview subdomains.
type ProxyHandler struct {
	service    Previewer
	baseDomain string
}

// NewProxyHandler creates a proxy answering for <name>.<baseDomain>.
func NewProxyHandler(service Previewer, baseDomain string) *ProxyHandler {
	return &ProxyHandler{service: service, baseDomain: baseDomain}
}

// subdomain returns the preview name for host, or "" when host is not a
// preview address.
func (h *ProxyHandler) subdomain(host string) string {
	if h.baseDomain == "" {
		return ""
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	name, ok := strings.CutSuffix(host, "."+h.baseDomain)
	if !ok || name == "" || name == "www" || strings.Contains(name, ".") {
		return ""
	}
	return name
}

// target picks the address a preview answers on: its published host port,
// or the container IP on the port recorded at build time when nothing is
// published.
func target(p domain.Preview) string {
	if p.HostPort != 0 {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(p.HostPort))
	}
	if p.IPAddress != "" {
		port := p.Port
		if port == 0 {
			port = domain.DefaultPort
		}
		return net.JoinHostPort(p.IPAddress, strconv.Itoa(port))
	}
	return ""
}

// ProxyRequest intercepts requests to subdomains (e.g., preview-blog.localhost)
// and routes them to the corresponding running preview.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	// 1. Extract Subdomain
	name := h.subdomain(c.Hostname())
	if name == "" {
		return c.Next()
	}

	// 2. Find Preview by Name (Subdomain)
	previews, err := h.service.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to list previews")
	}

	var addr string
	for _, p := range previews {
		// Only proxy to running previews
		if p.Name != name || p.State != "running" {
			continue
		}
		addr = target(p)
		break
	}
	if addr == "" {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Preview '%s' not found or not running", name))
	}

	// 3. Proxy the Request
	remote := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host so the content server sees the address it listens on.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	// Return BadGateway if the preview is still starting or has died.
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Preview '%s' unreachable at %s: %v", name, addr, err)
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
