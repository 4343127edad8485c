package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	. "github.com/ZenLiuCN/objfcn"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Usage = "relocatable object tool"
	app.Name = "objtool"
	app.Description = "compile C sources into relocatable objects and inspect objects loadable by objfcn"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
		},
	}
	app.Args = true
	app.Commands = []*cli.Command{
		{
			Name:   "compile",
			Action: compile,
			Args:   true,
			Usage:  "compile C sources to relocatable objects. the arguments can be a list of C sources or '.' for lookup at working directory.",
		},
		{
			Name:   "inspect",
			Action: inspect,
			Usage:  "display defined global symbols of object files",
			Args:   true,
		},
		{
			Name:   "sections",
			Action: sections,
			Usage:  "display the section table of object files",
			Args:   true,
		},
		{
			Name:   "relocs",
			Action: relocs,
			Usage:  "display relocation entries of object files",
			Args:   true,
		},
		{
			Name:   "dump",
			Action: dump,
			Usage:  "load object files and dump their exported addresses",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:    "lib",
					Aliases: []string{"l"},
					Usage:   "register a mapped shared object's symbols before loading",
				},
			},
			Args: true,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func compile(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	o := ctx.Args().Slice()
	if len(o) == 0 {
		return fmt.Errorf("missing target sources list")
	}
	if len(o) == 1 && o[0] == "." {
		if d {
			log.Printf("will use all .c files as sources")
		}
		o, err = lookup()
		if err != nil {
			return
		}
		log.Printf("found C sources at working directory: %v", o)
	}
	return Compile(d, o)
}

func inspect(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var names []string
		if names, err = Inspect(s); err != nil {
			return
		}
		log.Printf("%s:\n\t%s", s, strings.Join(names, "\n\t"))
	}
	return
}

func sections(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var v SectionInfos
		if v, err = Sections(s); err != nil {
			return
		}
		log.Printf("%s:\n%s", s, v.String())
	}
	return
}

func relocs(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var v RelocInfos
		if v, err = Relocs(s); err != nil {
			return
		}
		log.Printf("%s:\n%s", s, v.String())
	}
	return
}

func dump(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	for _, l := range ctx.StringSlice("lib") {
		if err = RegisterLibrary(l); err != nil {
			return
		}
	}
	sp := spew.NewDefaultConfig()
	sp.MaxDepth = 3
	for _, s := range ctx.Args().Slice() {
		var o Object
		if o, err = OpenWith(s, 0, nil, d); err != nil {
			return fmt.Errorf("%s: %w (%s)", s, err, LastError())
		}
		exported := make(map[string]uintptr)
		for _, name := range o.Exports() {
			if u, ok := o.Lookup(name); ok {
				exported[name] = uintptr(u)
			}
		}
		sp.Dump(s, exported)
		if err = o.Close(); err != nil {
			return
		}
	}
	return
}

func lookup() (v []string, err error) {
	var wd string
	wd, err = os.Getwd()
	if err != nil {
		return
	}
	var e []os.DirEntry
	e, err = os.ReadDir(wd)
	if err != nil {
		return
	}
	for _, entry := range e {
		if entry.IsDir() {
			continue
		}
		n := entry.Name()
		if strings.HasSuffix(n, ".c") {
			v = append(v, n)
		}
	}
	return
}
