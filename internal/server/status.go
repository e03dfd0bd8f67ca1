package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/assetflow/internal/build"
)

type status struct {
	Version         string
	Root            string
	Errors          []string
	Clients         int
	Builds          int64
	FailedBuilds    int64
	SuccessRate     float64
	FilesWritten    int64
	AverageDuration time.Duration
	Cache           build.CacheStats
}

// statusPage renders the dev server status. current is called on every
// request so the page always shows the latest build.
func statusPage(current func() status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		st := current()

		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>assetflow status</title>`)
		p.printf(`<style>body{font-family:system-ui,sans-serif;margin:2rem;color:#222}`)
		p.printf(`table{border-collapse:collapse}td,th{padding:.25rem 1rem;text-align:left}`)
		p.printf(`.ok{color:#15803d}.fail{color:#b91c1c}pre{background:#fef2f2;padding:.5rem}</style></head><body>`)
		p.printf(`<h1>assetflow %s</h1>`, templ.EscapeString(st.Version))
		p.printf(`<p>Serving <code>%s</code> to %d browser(s).</p>`, templ.EscapeString(st.Root), st.Clients)

		p.printf(`<h2>Builds</h2><table>`)
		p.row("Class builds", fmt.Sprint(st.Builds))
		p.row("Failed", fmt.Sprint(st.FailedBuilds))
		p.row("Success rate", fmt.Sprintf("%.0f%%", st.SuccessRate))
		p.row("Files written", fmt.Sprint(st.FilesWritten))
		p.row("Average duration", st.AverageDuration.Round(time.Millisecond).String())
		p.row("Cache hits", fmt.Sprint(st.Cache.Hits))
		p.row("Cache misses", fmt.Sprint(st.Cache.Misses))
		p.row("Cache hit rate", fmt.Sprintf("%.0f%%", st.Cache.HitRate()*100))
		p.printf(`</table>`)

		if len(st.Errors) == 0 {
			p.printf(`<h2 class="ok">Last build succeeded</h2>`)
		} else {
			p.printf(`<h2 class="fail">%d error(s) in the last build</h2>`, len(st.Errors))
			for _, e := range st.Errors {
				p.printf(`<pre>%s</pre>`, templ.EscapeString(e))
			}
		}
		p.printf(`</body></html>`)
		return p.err
	})
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) row(label, value string) {
	p.printf(`<tr><th>%s</th><td>%s</td></tr>`, templ.EscapeString(label), templ.EscapeString(value))
}
