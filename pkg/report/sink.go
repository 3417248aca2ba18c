package report

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// maxFilenameBytes keeps report names under the common 255-byte filesystem limit
const maxFilenameBytes = 200

// Sink persists one report per page
type Sink interface {
	Persist(pageURL, body string) error
}

// FileSink writes each report to <dir>/<host>_<path with '/' replaced by '_'>.txt
type FileSink struct {
	dir string
	log *logrus.Entry
}

// NewFileSink creates the output directory if needed
func NewFileSink(dir string, log *logrus.Entry) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory '%s': %w", utils.ErrIO, dir, err)
	}
	return &FileSink{dir: dir, log: log.WithField("component", "report_sink")}, nil
}

// Dir returns the output directory
func (s *FileSink) Dir() string { return s.dir }

// Persist writes body to the report file for pageURL, replacing any previous report
// for the same host and path. The file is synced before Persist returns.
// Every error wraps utils.ErrIO.
func (s *FileSink) Persist(pageURL, body string) error {
	name, err := ReportFilename(pageURL)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating report '%s': %w", utils.ErrIO, path, err)
	}
	if _, err := file.WriteString(body); err != nil {
		file.Close()
		return fmt.Errorf("%w: writing report '%s': %w", utils.ErrIO, path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("%w: syncing report '%s': %w", utils.ErrIO, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing report '%s': %w", utils.ErrIO, path, err)
	}
	s.log.WithField("url", pageURL).Debugf("Report written to %s", path)
	return nil
}

// ReportFilename derives the report file name for a page URL: the host ("unknown" when
// absent), an underscore, the escaped path with every '/' replaced by '_', and ".txt".
// Query and fragment do not take part. Overlong names are shortened with a hash suffix.
func ReportFilename(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w: report name for '%s': %w", utils.ErrIO, utils.ErrURLParse, pageURL, err)
	}
	host := u.Hostname()
	if host == "" {
		host = "unknown"
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	name := host + "_" + strings.ReplaceAll(path, "/", "_")
	if len(name) > maxFilenameBytes {
		hash := utils.CalculateBytesSHA256([]byte(name))
		name = name[:maxFilenameBytes-17] + "_" + hash[:16]
	}
	return name + ".txt", nil
}
