package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxProxiedImageBytes = int64(20 << 20)
	imageSniffBytes      = 512
	imageCacheControl    = "public, max-age=86400"
	maxImageRedirects    = 5
)

var blockedHostSuffixes = []string{".local", ".localhost", ".internal"}

// imageFailure is a proxy refusal rendered as {error, message}.
type imageFailure struct {
	status  int
	label   string
	message string
}

func (f *imageFailure) Error() string { return f.message }

func badImageURL(message string) *imageFailure {
	return &imageFailure{status: http.StatusBadRequest, label: "Invalid image url", message: message}
}

func imageFetchFailed(message string) *imageFailure {
	return &imageFailure{status: http.StatusBadGateway, label: "Failed to fetch image", message: message}
}

// handleImageProxy relays poster and album-art images so an https page can
// show the film database's http:// posters.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "URL parameter is required", "Please provide an image url")
		return
	}

	image, err := s.fetchImage(r.Context(), raw)
	if err != nil {
		var failure *imageFailure
		if !errors.As(err, &failure) {
			failure = imageFetchFailed("image host unreachable")
		}
		writeError(w, failure.status, failure.label, failure.message)
		return
	}
	defer image.body.Close()

	w.Header().Set("Content-Type", image.contentType)
	w.Header().Set("Cache-Control", imageCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image.head)
	_, _ = io.Copy(w, image.rest)
}

type proxiedImage struct {
	contentType string
	head        []byte
	rest        io.Reader
	body        io.Closer
}

func (s *Server) fetchImage(ctx context.Context, raw string) (*proxiedImage, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, badImageURL("url could not be parsed")
	}
	validate := s.validateImageURL
	if validate == nil {
		validate = validateProxyURL
	}
	if err := validate(ctx, target); err != nil {
		return nil, badImageURL(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, badImageURL("url could not be parsed")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", target.Scheme+"://"+target.Host+"/")

	resp, err := newImageProxyClient(ctx, validate).Do(req)
	if err != nil {
		return nil, imageFetchFailed("image host unreachable")
	}
	image, err := sniffImage(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return image, nil
}

// sniffImage checks status, size and type before anything is written to the
// client. The upstream body is never forwarded on failure; it may be HTML.
func sniffImage(resp *http.Response) (*proxiedImage, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, imageFetchFailed(fmt.Sprintf("image host returned HTTP %d", resp.StatusCode))
	}
	if resp.ContentLength > maxProxiedImageBytes {
		return nil, &imageFailure{
			status:  http.StatusRequestEntityTooLarge,
			label:   "Image too large",
			message: "images are limited to 20MB",
		}
	}

	limited := io.LimitReader(resp.Body, maxProxiedImageBytes)
	head := make([]byte, imageSniffBytes)
	n, err := io.ReadFull(limited, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, imageFetchFailed("image could not be read")
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, imageFetchFailed("not an image")
	}
	return &proxiedImage{contentType: contentType, head: head, rest: limited, body: resp.Body}, nil
}

// newImageProxyClient re-validates every redirect hop so a public host cannot
// bounce the proxy onto the private network.
func newImageProxyClient(parent context.Context, validate func(context.Context, *url.URL) error) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}).DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			if req.URL == nil {
				return errors.New("redirect missing url")
			}
			return validate(parent, req.URL)
		},
	}
}

// validateProxyURL refuses anything that resolves to this host or a private
// network.
func validateProxyURL(ctx context.Context, u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return errors.New("invalid url host")
	}
	if blockedHostName(host) {
		return errors.New("blocked url host")
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
		if err != nil || len(addrs) == 0 {
			return errors.New("failed to resolve url host")
		}
		for _, addr := range addrs {
			ips = append(ips, addr.IP)
		}
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return errors.New("blocked url host")
		}
	}
	return nil
}

func blockedHostName(host string) bool {
	if host == "localhost" {
		return true
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	return ip == nil ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
