package main

import (
	"fmt"
	"os"

	"github.com/bherbruck/formulang/internal/diag"
)

func printDiagnostics(bag *diag.Bag) {
	if bag == nil {
		return
	}
	printDiagnosticList(bag.All())
}

func printDiagnosticList(diags []diag.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
}
