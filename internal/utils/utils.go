package utils

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ytqgo/internal/models"
)

// LinkPreview is the lightweight page metadata shown before a job is
// submitted, scraped from Open Graph tags on the media page itself.
type LinkPreview struct {
	Url      string `json:"url"`
	Title    string `json:"title,omitempty"`
	ImageUrl string `json:"imageUrl,omitempty"`
	SiteName string `json:"siteName,omitempty"`
	Platform string `json:"platform"`
}

var previewClient = &http.Client{Timeout: 10 * time.Second}

func ExtractLinkPreview(pageURL string) (LinkPreview, error) {
	slog.Info("Extracting link preview", "url", pageURL)
	preview := LinkPreview{Url: pageURL, Platform: PlatformFromURL(pageURL)}

	res, err := previewClient.Get(pageURL)
	if err != nil {
		return preview, err
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return preview, fmt.Errorf("preview fetch returned status %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return preview, err
	}

	doc.Find(`meta[property="og:title"]`).Each(func(i int, s *goquery.Selection) {
		if c, ok := s.Attr("content"); ok {
			preview.Title = strings.TrimSpace(c)
		}
	})
	doc.Find(`meta[property="og:image"]`).Each(func(i int, s *goquery.Selection) {
		if c, ok := s.Attr("content"); ok {
			preview.ImageUrl = strings.TrimSpace(c)
		}
	})
	doc.Find(`meta[property="og:site_name"]`).Each(func(i int, s *goquery.Selection) {
		if c, ok := s.Attr("content"); ok {
			preview.SiteName = strings.TrimSpace(c)
		}
	})

	if preview.Title == "" {
		preview.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return preview, nil
}

// PlatformFromURL guesses the hosting platform from the URL host.
func PlatformFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case strings.Contains(host, "youtube.com"), host == "youtu.be":
		return "youtube"
	case strings.Contains(host, "vimeo.com"):
		return "vimeo"
	case strings.Contains(host, "twitch.tv"):
		return "twitch"
	case strings.Contains(host, "soundcloud.com"):
		return "soundcloud"
	case strings.Contains(host, "tiktok.com"):
		return "tiktok"
	default:
		return "unknown"
	}
}

func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown size"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return ""
	}
	return FormatSize(int64(bytesPerSec)) + "/s"
}

func FormatDuration(sec int) string {
	if sec <= 0 {
		return ""
	}
	d := time.Duration(sec) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// SanitizeFilename strips characters that are unsafe in file names across
// common filesystems.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// GenerateFilename builds a local save name for a finished job, preferring
// the backend-reported output name.
func GenerateFilename(job models.Job) string {
	if job.OutputFileName != "" {
		return SanitizeFilename(job.OutputFileName)
	}
	base := job.Title
	if base == "" {
		base = job.Id
	}
	ext := "mp4"
	if job.Format != "" && !strings.Contains(job.Format, "+") {
		ext = job.Format
	}
	return SanitizeFilename(base) + "." + ext
}
