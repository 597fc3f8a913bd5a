package main

import (
	"fmt"
	"os"

	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ingestProgress draws a document progress bar on stderr. The bar is created on the first report,
// once the document total is known.
type ingestProgress struct {
	bar *progressbar.ProgressBar
}

func progressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (p *ingestProgress) report(pr indexer.Progress) {
	if pr.Total <= 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("ingesting"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	desc := utils.Truncate(pr.Document, 32)
	if pr.Chunks > 0 && pr.Chunk < pr.Chunks {
		desc = fmt.Sprintf("%s %d/%d", utils.Truncate(pr.Document, 24), pr.Chunk, pr.Chunks)
	}
	p.bar.Describe(desc)
	_ = p.bar.Set(pr.Documents)
}

func (p *ingestProgress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
