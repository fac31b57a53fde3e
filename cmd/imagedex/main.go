// Package main provides the entry point for the imagedex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/imagedex/cmd/imagedex/cmd"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, apperrors.FormatForCLI(err))
		os.Exit(1)
	}
}
