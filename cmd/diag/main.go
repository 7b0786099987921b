// Command diag prints the records extracted from Horizons reports, either
// from saved report files or fetched live by body ID.
//
//	diag --file earth.txt
//	diag 399 301 599
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/star/ephemgo/internal/cache"
	"github.com/star/ephemgo/internal/ephemeris"
	"github.com/star/ephemgo/internal/horizons"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	files := pflag.StringSlice("file", nil, "saved Horizons report to extract (repeatable)")
	sourceURL := pflag.String("upstream-url", horizons.DefaultSourceURL, "Horizons API endpoint")
	pflag.Parse()

	if len(*files) == 0 && pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: diag [--file report.txt]... [body-id]...")
		os.Exit(2)
	}

	failed := false
	for _, path := range *files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Println("ERROR reading report:", err)
			failed = true
			continue
		}
		printRecord(path, string(data))
	}

	fetcher := horizons.NewFetcher(horizons.Config{SourceURL: *sourceURL}, cache.New(cache.DefaultCapacity), logger)
	for _, arg := range pflag.Args() {
		id, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Printf("ERROR body ID %q is not an integer\n", arg)
			failed = true
			continue
		}
		report, err := fetcher.Fetch(context.Background(), id)
		if err != nil {
			fmt.Printf("ERROR fetching body %d: %v\n", id, err)
			failed = true
			continue
		}
		printRecord(arg, report)
	}

	if failed {
		os.Exit(1)
	}
}

func printRecord(source, report string) {
	rec := ephemeris.Extract(report)
	out, _ := json.MarshalIndent(rec, "", "  ")

	matched := ephemeris.Matched(report)
	fmt.Printf("== %s (%d bytes, matched: %s)\n%s\n", source, len(report), strings.Join(matched, ", "), out)
	if rec.Empty() {
		fmt.Println("WARNING: no known fields found; the report layout may have changed")
	}
}
