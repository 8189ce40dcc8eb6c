package update

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/text/language"
)

// Opener shows a URL to the user
type Opener func(url string) error

// OpenBrowser opens url with the platform's default handler
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// SystemLocale returns the POSIX locale of the process, e.g. "zh_CN.UTF-8"
func SystemLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Region extracts the ISO 3166 region of a POSIX or BCP 47 locale. When the
// locale names only a language, its most likely region is used.
func Region(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	return region.String()
}

// ReleasePage picks the mirror for the user's region: gitee inside
// mainland China, GitHub everywhere else.
func ReleasePage(githubPage, giteePage, locale string) string {
	if Region(locale) == "CN" {
		return giteePage
	}
	return githubPage
}
