package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	dos "dos-disasm"
)

// defaultExe is analyzed when no filename is given.
const defaultExe = "data/H.EXE"

func infoCmd(file string) error {
	exe, err := dos.OpenMZ(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", file, err)
		return err
	}
	defer exe.Close()

	fmt.Printf("Image size  %d bytes\n", exe.ImageSize())
	fmt.Printf("Entry point %s\n", exe.Entry())
	fmt.Printf("Relocations %d\n", exe.RelocCount())
	for i := 0; i < exe.RelocCount(); i++ {
		fmt.Printf("  reloc %3d at image offset %05X\n", i, exe.Reloc(i))
	}

	return nil
}

func disasmCmd(file string, entry string, verbose bool) error {
	exe, err := dos.OpenMZ(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "The file format is not supported.")
		return err
	}
	defer exe.Close()

	start := exe.Entry()
	if entry != "" {
		if start, err = parseFarPtr(entry); err != nil {
			return err
		}
	}

	d := dos.New(exe.Image())
	if verbose {
		d.Logger().SetLevel(logrus.DebugLevel)
	}

	d.Analyze(start)
	if err := d.Listing(os.Stdout); err != nil {
		return err
	}
	d.Stat()

	return nil
}

// parseFarPtr parses a SEG:OFF pair in hex, e.g. "0000:7430".
func parseFarPtr(s string) (dos.FarPtr, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return dos.FarPtr{}, fmt.Errorf("entry must be SEG:OFF, got %q", s)
	}
	seg, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return dos.FarPtr{}, fmt.Errorf("bad segment in %q", s)
	}
	off, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return dos.FarPtr{}, fmt.Errorf("bad offset in %q", s)
	}
	return dos.FarPtr{Seg: uint16(seg), Off: uint16(off)}, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "dos-disasm"
	app.Usage = "Recursive-traversal disassembler for DOS MZ executables"

	disasmFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "entry",
			Usage: "start analysis at SEG:OFF (hex) instead of the header entry point",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log every decoded instruction to stderr",
		},
	}

	app.Flags = disasmFlags
	app.Action = func(c *cli.Context) error {
		file := defaultExe
		if c.NArg() >= 1 {
			file = c.Args().First()
		}
		if err := disasmCmd(file, c.String("entry"), c.Bool("verbose")); err != nil {
			return cli.NewExitError("file format not supported", 1)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "info",
			Aliases:   []string{"i"},
			Usage:     "Show MZ header information",
			ArgsUsage: "file",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return cli.NewExitError("Insufficient arguments", 1)
				}
				if err := infoCmd(c.Args().First()); err != nil {
					return cli.NewExitError("file format not supported", 1)
				}
				return nil
			},
		},
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "Disassemble an executable",
			ArgsUsage: "[file]",
			Flags:     disasmFlags,
			Action: func(c *cli.Context) error {
				file := defaultExe
				if c.NArg() >= 1 {
					file = c.Args().First()
				}
				if err := disasmCmd(file, c.String("entry"), c.Bool("verbose")); err != nil {
					return cli.NewExitError("file format not supported", 1)
				}
				return nil
			},
		},
	}
	app.Run(os.Args)
}
