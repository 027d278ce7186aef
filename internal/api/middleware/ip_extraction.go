package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// Cabeçalhos de proxy em ordem de confiança.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Client-IP",
}

func GetClientIP(c *gin.Context) string {
	for _, h := range proxyHeaders {
		raw := c.GetHeader(h)
		if raw == "" {
			continue
		}
		for _, candidate := range strings.Split(raw, ",") {
			if ip := normalizeIP(candidate); ip != "" {
				return ip
			}
		}
	}
	return c.ClientIP()
}

// normalizeIP limpa um candidato vindo de cabeçalho, que pode vir com porta.
func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	} else if i := strings.IndexByte(raw, ':'); i >= 0 && strings.Count(raw, ":") == 1 {
		raw = raw[:i]
	}
	if net.ParseIP(raw) == nil {
		return ""
	}
	return raw
}

var privateNets = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range privateNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
