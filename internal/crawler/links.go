package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultExcludedExtensions are file types that are never crawled
var DefaultExcludedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".gz", ".tar", ".rar", ".7z", ".exe", ".dmg", ".iso",
	".mp3", ".mp4", ".avi", ".mov", ".wmv", ".webm",
	".css", ".js", ".json", ".xml", ".woff", ".woff2", ".ttf", ".eot",
}

// Excluded host patterns (social media, ads, analytics), only consulted when
// the crawl may leave the seed host
var excludedHosts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(facebook|fb)\.com$`),
	regexp.MustCompile(`(?i)(twitter|x)\.com$`),
	regexp.MustCompile(`(?i)instagram\.com$`),
	regexp.MustCompile(`(?i)linkedin\.com$`),
	regexp.MustCompile(`(?i)youtube\.com$`),
	regexp.MustCompile(`(?i)google-analytics\.com$`),
	regexp.MustCompile(`(?i)doubleclick\.net$`),
	regexp.MustCompile(`(?i)googletagmanager\.com$`),
	regexp.MustCompile(`(?i)^ads?\.`),
	regexp.MustCompile(`(?i)^analytics?\.`),
}

// ResolveLink turns an href found on the page at base into an absolute URL
// without fragment. It covers absolute, scheme-relative (//host/path),
// root-relative (/path) and document-relative (page.html) references.
// Fragment-only and non-http(s) references yield false.
func ResolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}

	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Hostname() == "" {
		return nil, false
	}

	return Normalize(u), true
}

// Normalize drops the fragment, lowercases scheme and host and gives an empty
// path the root path so equivalent URLs share one visited-set key
func Normalize(u *url.URL) *url.URL {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return &n
}

// HasExcludedExtension reports whether the URL path ends in one of exts
func HasExcludedExtension(u *url.URL, exts map[string]struct{}) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	_, ok := exts[ext]
	return ok
}

// ExtractRootDomain extracts the registrable part of a host.
// Example: blog.example.com -> example.com
func ExtractRootDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return host
}

// IsExcludedHost checks a host against the social and tracking patterns
func IsExcludedHost(host string) bool {
	for _, pattern := range excludedHosts {
		if pattern.MatchString(host) {
			return true
		}
	}
	return false
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
