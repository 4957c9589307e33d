package config

import (
	"os"
	"path/filepath"

	"github.com/smazurov/lednode/internal/faults"
)

// IndexDocument must be present in the static asset directory.
const IndexDocument = "index.html"

// CheckStaticDir verifies the static asset directory exists and holds the
// root document. Both failures are fatal configuration errors.
func CheckStaticDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return faults.Configuration("static assets",
			"this device depends on a static asset directory; please create "+dir)
	}
	if _, err := os.Stat(filepath.Join(dir, IndexDocument)); err != nil {
		return faults.Configuration("static assets",
			"this device depends on an "+IndexDocument+", but it isn't present; please add it to "+dir)
	}
	return nil
}
