package engine

import (
	"fmt"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// CopySite pushes every option of srcSite in src to dstSite in dst.
// This works for:
// - Embedded -> Remote (moving a shop's policy onto a shared daemon)
// - Remote -> Embedded (offline backup)
// - one site to another on the same store
// It returns the number of options copied.
func CopySite(src sdk.BatchExporter, dst sdk.OptionWriter, srcSite, dstSite string) (int, error) {
	options, err := src.GetSiteOptions(srcSite)
	if err != nil {
		return 0, fmt.Errorf("failed to dump site %s: %w", srcSite, err)
	}

	n := 0
	for k, v := range options {
		if err := dst.Set(dstSite, k, v); err != nil {
			return n, fmt.Errorf("failed to set option %s in destination: %w", k, err)
		}
		n++
	}
	return n, nil
}
