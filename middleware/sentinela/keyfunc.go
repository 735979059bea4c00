package sentinela

import (
	"net"
	"net/http"
	"strings"
)

// OriginFunc extrai a origem (o "limitApp" das regras) da requisição.
type OriginFunc func(r *http.Request) string

// ResourceFunc dá nome ao recurso protegido.
type ResourceFunc func(r *http.Request) string

// DefaultResourceFunc usa "METHOD /path".
func DefaultResourceFunc(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return r.Method + " " + path
}

func DefaultOriginFunc(originHeader string, trustXFF bool) OriginFunc {
	return func(r *http.Request) string {
		if originHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(originHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
}
