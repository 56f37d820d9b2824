// Show the dynamic progress bar

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sharepkg/sharepkg/fs"
	"golang.org/x/term"
)

const (
	// interval between progress prints
	defaultProgressInterval = 500 * time.Millisecond
)

// NewProgress returns a func to pass as the progress callback of an
// upload of name and a func to call when the upload is over.
//
// With --progress a bar is drawn on stderr if it is a terminal,
// otherwise each part is logged at INFO level.
func NewProgress(ctx context.Context, name string) (progress func(sent, total int64), stop func()) {
	ci := fs.GetConfig(ctx)
	if !ci.Progress || !term.IsTerminal(int(os.Stderr.Fd())) {
		return func(sent, total int64) {
			fs.Infof(name, "Uploaded %v of %v", fs.SizeSuffix(sent), fs.SizeSuffix(total))
		}, func() {}
	}
	var bar *progressbar.ProgressBar
	progress = func(sent, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(
				total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", name)),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(defaultProgressInterval),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionSetRenderBlankState(true),
			)
		}
		_ = bar.Set64(sent)
	}
	stop = func() {
		if bar != nil {
			_ = bar.Finish()
			_, _ = fmt.Fprintln(os.Stderr)
		}
	}
	return progress, stop
}
