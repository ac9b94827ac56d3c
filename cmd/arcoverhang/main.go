package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/aligator/arcoverhang"
	"github.com/aligator/arcoverhang/internal/warn"
)

var Version = "unknown development version"

func main() {
	printVersion := flag.BoolP("version", "v", false, "print version and exit")
	skipInput := flag.Bool("skip-input", false, "do not pause for a keypress after writing the output")
	output := flag.StringP("output", "o", "", "write the result to this path instead of overwriting the input")
	flag.Parse()

	if *printVersion {
		fmt.Printf("arcoverhang %s\n", Version)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		_, _ = fmt.Fprintf(os.Stderr, "usage: arcoverhang [flags] <gcode-file>\n")
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error while reading file:", err)
		os.Exit(2)
	}

	lines := splitLines(string(raw))

	reporter := warn.New(nil)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pr := arcoverhang.New(reporter, rng)

	result, err := pr.Process(lines)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error while processing file:", err)
		os.Exit(2)
	}

	for _, a := range reporter.Advisories() {
		fmt.Fprintln(os.Stderr, "warning:", a)
	}
	for _, f := range reporter.Failed() {
		fmt.Fprintf(os.Stderr, "warning: layer %d region %s failed: %s\n", f.LayerIndex, f.RegionID, f.Reason)
	}

	dest := path
	if *output != "" {
		dest = *output
	}

	if err := os.WriteFile(dest, []byte(arcoverhang.Render(result)), 0644); err != nil {
		fmt.Fprintln(os.Stderr, "error while writing file:", err)
		os.Exit(2)
	}

	if !*skipInput {
		fmt.Println("Press enter to exit.")
		bufio.NewReader(os.Stdin).ReadString('\n')
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			end := i
			if end > start && s[end-1] == '\r' {
				end--
			}
			lines = append(lines, s[start:end])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
