package utils

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// DescDownloading labels transfer progress bars.
const DescDownloading = "Downloading"

// NewByteProgressBar creates a progress bar for a transfer of totalBytes.
// Use -1 when the server did not announce a Content-Length. The quiet flag
// returns a silenced bar so call sites do not need to branch.
func NewByteProgressBar(totalBytes int64, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.NewOptions64(totalBytes, progressbar.OptionSetWriter(io.Discard))
	}

	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	}

	if totalBytes < 0 {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	return progressbar.NewOptions64(totalBytes, opts...)
}
