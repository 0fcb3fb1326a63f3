package web

import (
	"net/url"
	"strings"
)

// IsYouTubeURL reports whether u points at a YouTube video.
func IsYouTubeURL(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}

// YouTubeVideoID extracts the video id from watch, short, embed and
// youtu.be links.
func YouTubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !IsYouTubeURL(u) {
		return ""
	}
	if strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
		return parts[1]
	}
	return ""
}
