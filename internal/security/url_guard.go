// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard は外部URLへのアクセスを制限する機能のインターフェース。
// IDプロバイダーへの通信と、プロバイダーから受け取ったプロフィール画像URLの検証に使用する。
type URLGuard interface {
	// NewOutboundClient は内部ネットワークへの接続を拒否するHTTPクライアントを生成する。
	NewOutboundClient(timeout time.Duration) *http.Client

	// ValidateExternalURL はDNS解決を伴わない静的な検証を行い、
	// 内部ネットワークを指すURLや許可されないスキームの場合はエラーを返す。
	ValidateExternalURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は外部URLとして受け付けないアドレス範囲。
var blockedPrefixes = mustParsePrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostnames = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
}

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(c))
	}
	return prefixes
}

type urlGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() URLGuard {
	return urlGuard{}
}

// NewOutboundClient はsafeurlによる接続先検証付きのHTTPクライアントを生成する。
// 接続先IPはDNS解決後にDialerで検証される。
func (urlGuard) NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateExternalURL は外部URLの静的検証を行う。
func (urlGuard) ValidateExternalURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
		return nil
	}

	if _, blocked := blockedHostnames[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}
