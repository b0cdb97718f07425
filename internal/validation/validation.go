// Package validation guards the values sitepipe hands to other programs:
// subprocess command lines, browser URLs and websocket origins.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// shellMeta are characters with meaning to a shell. sitepipe never runs
// commands through a shell, so their presence signals a misconfiguration.
var shellMeta = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}

// ValidateArgument rejects a subprocess argument containing shell
// metacharacters or a parent-directory reference.
func ValidateArgument(arg string) error {
	for _, char := range shellMeta {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}
	for _, elem := range strings.FieldsFunc(arg, func(r rune) bool { return r == '/' || r == '=' }) {
		if elem == ".." {
			return fmt.Errorf("contains path traversal: %s", arg)
		}
	}
	return nil
}

// ValidateCommand checks a command name and its arguments before they are
// passed to exec.
func ValidateCommand(command string, args []string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsAny(command, " \t") {
		return fmt.Errorf("command %q must be a single program name; put arguments in args", command)
	}
	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command %q: %w", command, err)
	}
	for _, arg := range args {
		if err := ValidateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument %q: %w", arg, err)
		}
	}
	return nil
}

// ValidateURL checks a URL before it is handed to the platform browser
// opener: http or https, a host, and nothing a shell could interpret.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if strings.ContainsAny(rawURL, " \t") {
		return fmt.Errorf("URL contains whitespace")
	}
	for _, char := range shellMeta {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}
	return nil
}

// ValidateOrigin checks a websocket Origin header against the allowed
// host:port pairs. A missing origin is rejected.
func ValidateOrigin(origin string, allowedHosts []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme %q: only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedHosts {
		if strings.EqualFold(originURL.Host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("origin %q is not in allowed origins list", origin)
}

// LocalHosts returns the host:port pairs a dev server bound to host:port is
// reachable under from the local machine.
func LocalHosts(host string, port int) []string {
	p := fmt.Sprint(port)
	hosts := []string{net.JoinHostPort("localhost", p), net.JoinHostPort("127.0.0.1", p)}
	if host != "" && host != "localhost" && host != "127.0.0.1" && host != "0.0.0.0" {
		hosts = append(hosts, net.JoinHostPort(host, p))
	}
	return hosts
}
