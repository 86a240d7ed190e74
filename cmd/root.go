// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the spp command-line tool: describe, packets,
// server, and csv subcommands over a cobra root command.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/spacepacket/spp/cmd.Version=...".
var Version = "dev"

// Verbose enables extra diagnostic output across subcommands.
var Verbose bool

// Exit codes, per the CLI's documented contract.
const (
	ExitOK             = 0
	ExitUsageError     = 2
	ExitMalformedXTCE  = 3
	ExitMalformedInput = 4
)

var rootCmd = &cobra.Command{
	Use:     "spp",
	Short:   "Decode CCSDS space packets against an XTCE telemetry dictionary",
	Version: Version,
	Long: `spp frames, reassembles, and decodes CCSDS space packet streams against
an XTCE telemetry dictionary, and can serve the decoded stream over a
websocket for realtime consumers.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "print extra diagnostic output")
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command and returns the process exit code; it
// never calls os.Exit itself, so main can flush or clean up first.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if ce, ok := err.(*cliError); ok {
			fmt.Fprintln(os.Stderr, ce.err)
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return ExitUsageError
	}
	return ExitOK
}

// cliError pairs an error with the exit code it should produce, so a
// subcommand's RunE can return a specific code without calling os.Exit
// from deep inside a handler.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func usageError(err error) error           { return &cliError{code: ExitUsageError, err: err} }
func malformedXTCEError(err error) error   { return &cliError{code: ExitMalformedXTCE, err: err} }
func malformedInputError(err error) error  { return &cliError{code: ExitMalformedInput, err: err} }
