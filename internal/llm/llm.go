package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Kirito123l/emission-agent/internal/config"
)

// New builds the LLM client for a server configuration: a single transport
// to the configured provider if no proxy is set, or a FailoverClient over
// a proxy transport (primary) and a direct transport (secondary) if
// HTTP_PROXY/HTTPS_PROXY are configured.
func New(cfg *config.ServerConfig, logger *slog.Logger) (Client, error) {
	proxyURL := cfg.HTTPSProxy
	if proxyURL == "" {
		proxyURL = cfg.HTTPProxy
	}

	direct := newTransportClient(nil, cfg.LLMTimeout)
	primary := newProviderTransport(cfg, "direct", direct)

	if proxyURL == "" {
		return primary, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("llm: invalid proxy url %q: %w", proxyURL, err)
	}
	proxied := newTransportClient(parsed, cfg.LLMTimeout)
	proxyTransport := newProviderTransport(cfg, "proxy", proxied)

	return NewFailoverClient(logger, proxyTransport, primary), nil
}

func newTransportClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	rt := &http.Transport{}
	if proxyURL != nil {
		rt.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: rt, Timeout: timeout}
}

func newProviderTransport(cfg *config.ServerConfig, transportName string, httpClient *http.Client) transport {
	switch cfg.LLMProvider {
	case "anthropic":
		return newAnthropicTransport(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, transportName, httpClient)
	default:
		return newOpenAITransport(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, transportName, httpClient)
	}
}
