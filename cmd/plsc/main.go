// Command plsc compiles pls layout scripts into mask libraries, with
// optional PDF plots, a live viewer and a rebuild-on-change watch
// mode.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/maskfab/plsc/internal/plot"
	"github.com/maskfab/plsc/internal/viewer"
	"github.com/maskfab/plsc/internal/watch"
	"github.com/maskfab/plsc/pkg/gds"
	"github.com/maskfab/plsc/pkg/script"
)

const pdfWidth = 120 // mm

func main() {
	app := &cli.App{
		Name:      "plsc",
		Usage:     "pls layout renderer command line tool",
		ArgsUsage: "<layout.pls | layout.gds>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-output", Aliases: []string{"n"}, Usage: "do not write results to file"},
			&cli.BoolFlag{Name: "view", Aliases: []string{"v"}, Usage: "open layout viewer to display result"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "open viewer and refresh if source file changes, implies -v"},
			&cli.BoolFlag{Name: "pdf", Aliases: []string{"p"}, Usage: "write results as pdf file instead of gds"},
			&cli.BoolFlag{Name: "force-rerender", Aliases: []string{"f"}, Usage: "force rerender (including all cached .plb files)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one layout file argument")
	}
	input := c.Args().First()
	base := strings.TrimSuffix(input, ".pls")
	base = strings.TrimSuffix(base, ".gds")
	opts := script.Options{ForceRerender: c.Bool("force-rerender")}

	if strings.HasSuffix(input, ".gds") {
		if c.Bool("watch") {
			return fmt.Errorf("watching only supported for *.pls files")
		}
		return runPrebuilt(c, input, base)
	}

	if c.Bool("watch") {
		return runWatch(c, input, base, opts)
	}

	s, err := script.CompileFile(input, opts)
	if err != nil {
		return err
	}
	if s.LoadedFromCache() {
		fmt.Println(" > loaded from cache")
	}
	if err := writeOutput(c, s.Lib, base); err != nil {
		return err
	}
	if c.Bool("view") {
		return viewer.Run(viewer.NewShared(s.Lib))
	}
	return nil
}

// runPrebuilt re-plots or views an already built mask file.
func runPrebuilt(c *cli.Context, input, base string) error {
	lib, err := gds.ReadFile(input)
	if err != nil {
		return err
	}
	if c.Bool("pdf") && !c.Bool("no-output") {
		if err := plot.WritePDF(lib, base, pdfWidth); err != nil {
			return err
		}
	}
	if c.Bool("view") {
		return viewer.Run(viewer.NewShared(lib))
	}
	return nil
}

func runWatch(c *cli.Context, input, base string, opts script.Options) error {
	shared := viewer.NewShared(nil)
	results := make(chan watch.Result, 4)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		if err := watch.Loop(input, opts, results, stop); err != nil {
			results <- watch.Result{Err: err}
		}
	}()
	go func() {
		for r := range results {
			switch {
			case r.Err != nil:
				fmt.Fprintln(os.Stderr, " > error:", r.Err)
			case r.Changed:
				if err := writeOutput(c, r.Script.Lib, base); err != nil {
					fmt.Fprintln(os.Stderr, " > error:", err)
				}
				shared.Replace(r.Script.Lib)
				fmt.Println(" > successful")
			default:
				fmt.Println(" > no changes")
			}
		}
	}()

	err := viewer.Run(shared)
	shared.Shutdown()
	return err
}

func writeOutput(c *cli.Context, lib *gds.Library, base string) error {
	if c.Bool("no-output") {
		return nil
	}
	if c.Bool("pdf") {
		return plot.WritePDF(lib, base, pdfWidth)
	}
	return lib.WriteFile(base+".gds", time.Now())
}
