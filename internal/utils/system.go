package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9\-_.]`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return hostname, nil
}

// SanitizeName lowercases name, turns spaces into hyphens and strips
// anything that is not alphanumeric, a hyphen, an underscore or a dot. The
// result never starts with a dot, so it is never a hidden file.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")

	if name == "" {
		name = "recipient"
	}
	return name
}
