package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"

	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/utils"
)

// writeHTMLToFile stores the given page markup in the debug directory
// for later inspection. Failures only get logged, a debug dump must
// never break a run.
func writeHTMLToFile(ctx context.Context, urlStr, content, debugDir string) {
	logger := log.LoggerFromContext(ctx)
	if debugDir != "" {
		if err := os.MkdirAll(debugDir, os.ModePerm); err != nil {
			logger.Warn(fmt.Sprintf("failed to create debug directory: %v", err))
			return
		}
	}
	base := "page"
	if u, err := url.Parse(urlStr); err == nil && u.Host != "" {
		base = u.Host
	}
	r, err := utils.RandomString(base)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to generate debug file name: %v", err))
		return
	}
	filename := path.Join(debugDir, fmt.Sprintf("%s.html", r))
	logger.Debug(fmt.Sprintf("writing html to file %s", filename))
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		logger.Warn(fmt.Sprintf("failed to write html to file: %v", err))
	}
}
