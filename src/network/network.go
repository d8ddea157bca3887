package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	"golang.org/x/time/rate"
)

// NetworkManager sends backend requests through the configured proxy with a
// shared rate limit. It never retries on its own.
type NetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger

	mu           sync.RWMutex
	client       *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg *models.MConfig, log *logger.Logger) *NetworkManager {
	if log == nil {
		log = logger.NewLogger(cfg, "Network")
	}

	limit := rate.Inf
	if cfg.Backend.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.Backend.RequestsPerSecond)
	}
	burst := cfg.Backend.Burst
	if burst <= 0 {
		burst = 1
	}

	nm := &NetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(cfg.Backend.Proxies, cfg.Backend.UserAgent, log.Named("ProxyManager")),
		Logger:       log,
		limiter:      rate.NewLimiter(limit, burst),
	}
	nm.client, nm.streamClient = nm.createClients()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) createClients() (*http.Client, *http.Client) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			if proxyURL, err := url.Parse(proxyStr); err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	timeout := time.Duration(nm.Config.Backend.RequestTimeout) * time.Second
	return &http.Client{Transport: transport, Timeout: timeout},
		&http.Client{Transport: transport}
}

// -----------------------------------------------------------------------------

// RotateProxy moves to the next proxy and rebuilds the clients.
func (nm *NetworkManager) RotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	client, streamClient := nm.createClients()

	nm.mu.Lock()
	nm.client, nm.streamClient = client, streamClient
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Do performs a single request. Transport failures come back as *helpers.NetworkError.
func (nm *NetworkManager) Do(ctx context.Context, method, urlStr string, body io.Reader, headers map[string]string) (*http.Response, error) {
	nm.mu.RLock()
	client := nm.client
	nm.mu.RUnlock()
	return nm.send(ctx, client, method, urlStr, body, headers)
}

// -----------------------------------------------------------------------------

// Stream performs a GET with no client timeout; ctx bounds its lifetime.
func (nm *NetworkManager) Stream(ctx context.Context, urlStr string, headers map[string]string) (*http.Response, error) {
	nm.mu.RLock()
	client := nm.streamClient
	nm.mu.RUnlock()
	return nm.send(ctx, client, http.MethodGet, urlStr, nil, headers)
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) send(ctx context.Context, client *http.Client, method, urlStr string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if err := nm.limiter.Wait(ctx); err != nil {
		return nil, helpers.NewNetworkError(fmt.Sprintf("%s %s not sent", method, urlStr), err)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			nm.Logger.Debug("%s %s canceled", method, urlStr)
		} else {
			nm.Logger.Info("%s %s failed: %v", method, urlStr, err)
		}
		return nil, helpers.NewNetworkError(fmt.Sprintf("%s %s failed", method, urlStr), err)
	}

	if resp.StatusCode == http.StatusForbidden {
		// A proxy that gets refused is unlikely to recover; move on for the next call.
		nm.RotateProxy()
	}
	return resp, nil
}
