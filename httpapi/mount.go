package httpapi

import "strings"

// normalizeMountPath canonicalizes the path the server is mounted under:
// a leading slash, no trailing slash, and empty for a root mount.
func normalizeMountPath(value string) string {
	p := strings.Trim(strings.TrimSpace(value), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// shareLinkBase derives the absolute prefix for minted share links. Empty
// when neither a public URL nor a mount path is configured; callers then
// fall back to host-relative links.
func shareLinkBase(baseURL, mountPath string) string {
	origin := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	prefix := origin + normalizeMountPath(mountPath)
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
