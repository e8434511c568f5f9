package triage

import (
	"fmt"
	"log/slog"
	"strings"

	"photo-triage/internal/domain"
	"photo-triage/internal/workerproto"
)

// Applier turns one verdict into its filesystem side effect and progress record.
type Applier struct {
	copyFile func(src, dst string) error
	logger   *slog.Logger
}

// Apply copies kept files into the output folder. A failed copy keeps the
// verdict and annotates the reason; it never aborts the run.
func (a *Applier) Apply(current int, c Candidate, resp workerproto.Response) domain.ProgressEvent {
	reason := strings.TrimSpace(resp.Reason)
	if resp.Keep {
		if err := a.copyFile(c.Path, c.DestPath); err != nil {
			a.logger.Warn("copy kept file failed", "file", c.Path, "dest", c.DestPath, "error", err)
			reason = appendReason(reason, fmt.Sprintf("(copy to output folder failed: %v)", err))
		}
	}

	return domain.ProgressEvent{
		Type:     domain.EventProgress,
		Current:  current,
		FileName: c.Name,
		Keep:     resp.Keep,
		Reason:   reason,
	}
}

func appendReason(reason, suffix string) string {
	if reason == "" {
		return suffix
	}
	return reason + " " + suffix
}
