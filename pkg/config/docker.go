package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker returns the appropriate host address for connecting to external services.
// If running in Docker and the host is "localhost" or "127.0.0.1", it returns "host.docker.internal"
// to allow connections to services running on the host machine.
// Otherwise, returns the original host unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveURLForDocker applies ResolveHostForDocker to the host of rawURL,
// keeping the scheme, port and path. Unparseable URLs are returned unchanged.
func ResolveURLForDocker(rawURL string) string {
	return resolveURL(rawURL, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

func resolveURL(rawURL string, inDocker bool) string {
	if !inDocker || rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host, port := u.Hostname(), u.Port()
	resolved := resolveHost(host, true)
	if resolved == host {
		return rawURL
	}
	if port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}
