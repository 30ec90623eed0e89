// Command ofxdump is a diagnostic tool: it parses a single OFX/QFX file
// and writes the parse result (candidates plus errors) as indented JSON to
// standard output.
//
// Exit codes: 0 on a clean parse, 1 on usage errors, missing files or
// unexpected failures, 2 when parsing completed but produced errors.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/restage-dev/restage/internal/ofx"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "ofxdump: panic: %v\n%s", r, debug.Stack())
			code = 1
		}
	}()

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <statement-file>\n", filepath.Base(os.Args[0]))
		return 1
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ofxdump: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	result, err := ofx.NewParser().Parse(context.Background(), f, filepath.Base(os.Args[1]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ofxdump: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "ofxdump: %v\n", err)
		return 1
	}

	if len(result.Errors) > 0 {
		return 2
	}
	return 0
}
