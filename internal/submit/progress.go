package submit

import (
	"context"
	"io"
	"log/slog"

	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// progressReader logs how much of the request body has been sent.
// It is diagnostic only.
type progressReader struct {
	r       io.Reader
	logger  *slog.Logger
	total   int
	sent    int
	lastPct int
}

func newProgressReader(ctx context.Context, r io.Reader, total int) *progressReader {
	return &progressReader{
		r:       r,
		logger:  logging.FromContext(ctx),
		total:   total,
		lastPct: -1,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += n
	if p.total > 0 {
		pct := p.sent * 100 / p.total
		// Log in 10% steps.
		if pct/10 != p.lastPct/10 || (pct == 100 && p.lastPct != 100) {
			p.logger.Debug("upload progress", "percent", pct)
			p.lastPct = pct
		}
	}
	return n, err
}
