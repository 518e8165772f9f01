package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"releasetest/internal/pipeline"

	"github.com/briandowns/spinner"
)

// progressObserver shows the current stage of a run next to a spinner. The
// spinner stops once the run reaches the report stage so it does not
// interleave with the console report.
type progressObserver struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	stopped bool
}

var _ pipeline.Observer = (*progressObserver)(nil)

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

func (p *progressObserver) StageStarted(test string, stage pipeline.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if stage == pipeline.StageReport || stage == pipeline.StageDone {
		p.stopped = true
		p.spinner.Stop()
		return
	}

	p.spinner.Lock()
	p.spinner.Suffix = fmt.Sprintf(" %s: %s", test, stage)
	p.spinner.Unlock()
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

func (p *progressObserver) StageFinished(string, pipeline.Stage, error) {}

// Suffix returns the text currently shown next to the spinner.
func (p *progressObserver) Suffix() string {
	p.spinner.Lock()
	defer p.spinner.Unlock()
	return p.spinner.Suffix
}

// Stop stops the spinner. It is safe to call more than once.
func (p *progressObserver) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.spinner.Stop()
}
