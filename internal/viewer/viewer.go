// Package viewer displays the compiled cell library in a browser page
// driven through chromedp. It shares the compiler's (library,
// shutdown) cell: the page is re-rendered whenever the library pointer
// changes and the viewer exits when shutdown is set.
package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/maskfab/plsc/pkg/gds"
)

// Shared is the cell both threads observe: the compiler stores a new
// library, the viewer polls and refreshes.
type Shared struct {
	mu         sync.Mutex
	lib        *gds.Library
	generation int
	shutdown   bool
}

// NewShared seeds the cell with the first library.
func NewShared(lib *gds.Library) *Shared {
	return &Shared{lib: lib, generation: 1}
}

// Replace publishes a new library to the viewer.
func (s *Shared) Replace(lib *gds.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib = lib
	s.generation++
}

// Shutdown asks the viewer to exit; Run returns after the next poll.
func (s *Shared) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

func (s *Shared) snapshot() (*gds.Library, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lib, s.generation, s.shutdown
}

const pollInterval = 500 * time.Millisecond

// Run opens the browser page and blocks until Shutdown is called or
// the browser is closed.
func Run(shared *Shared) error {
	dir, err := os.MkdirTemp("", "plsc-view-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	page := filepath.Join(dir, "layout.html")

	lib, gen, _ := shared.snapshot()
	if err := os.WriteFile(page, []byte(renderHTML(lib)), 0o644); err != nil {
		return err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate("file://"+page)); err != nil {
		return err
	}

	for {
		time.Sleep(pollInterval)
		newLib, newGen, down := shared.snapshot()
		if down {
			return nil
		}
		if ctx.Err() != nil {
			return nil // browser closed by the user
		}
		if newGen != gen {
			gen = newGen
			if err := os.WriteFile(page, []byte(renderHTML(newLib)), 0o644); err != nil {
				return err
			}
			if err := chromedp.Run(ctx, chromedp.Navigate("file://"+page)); err != nil {
				return nil
			}
		}
	}
}

var svgPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// renderHTML builds one SVG figure per cell, sorted by name.
func renderHTML(lib *gds.Library) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><title>plsc layout</title>")
	sb.WriteString("<style>body{font-family:monospace;background:#222;color:#ddd}svg{background:#111;margin:8px}</style>")
	sb.WriteString("</head><body>")
	if lib == nil {
		sb.WriteString("<p>no library</p></body></html>")
		return sb.String()
	}
	for _, name := range lib.CellNames() {
		min, max, ok := lib.BoundingBox(name)
		if !ok {
			continue
		}
		w := max.X - min.X
		h := max.Y - min.Y
		if w <= 0 {
			w = 1
		}
		if h <= 0 {
			h = 1
		}
		pad := 0.05 * (w + h)
		sb.WriteString(fmt.Sprintf("<h3>%s</h3>", name))
		sb.WriteString(fmt.Sprintf(
			`<svg width="600" viewBox="%g %g %g %g" preserveAspectRatio="xMidYMid meet">`,
			min.X-pad, -max.Y-pad, w+2*pad, h+2*pad))

		polys := lib.Flatten(name)
		layers := map[int][]gds.Polygon{}
		var order []int
		for _, p := range polys {
			if _, ok := layers[p.Layer]; !ok {
				order = append(order, p.Layer)
			}
			layers[p.Layer] = append(layers[p.Layer], p)
		}
		sort.Ints(order)
		for _, layer := range order {
			color := svgPalette[((layer%len(svgPalette))+len(svgPalette))%len(svgPalette)]
			for _, p := range layers[layer] {
				sb.WriteString(`<polygon fill="` + color + `" fill-opacity="0.6" points="`)
				for i, pt := range p.Points {
					if i > 0 {
						sb.WriteByte(' ')
					}
					// SVG y grows downward
					sb.WriteString(fmt.Sprintf("%g,%g", pt.X, -pt.Y))
				}
				sb.WriteString(`"/>`)
			}
		}
		sb.WriteString("</svg>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}
