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

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacepacket/spp/ccsds"
	"github.com/spacepacket/spp/decode"
	"github.com/spacepacket/spp/reassemble"
	"github.com/spacepacket/spp/server"
	"github.com/spacepacket/spp/xtce"
)

var (
	serverPort           int
	serverReassemble     bool
	serverSecondaryBytes int
)

// serverCmd starts the realtime server standalone, replaying a binary
// packet stream into it instead of decoding to stdout. Unlike `packets
// --serve`, this subcommand has no JSON output of its own: it exists for
// the case where the server is the only consumer.
var serverCmd = &cobra.Command{
	Use:   "server <xtce> <binary>",
	Short: "Serve a decoded packet stream over websocket",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVar(&serverPort, "port", 8000, "listen port")
	serverCmd.Flags().BoolVar(&serverReassemble, "reassemble", false, "reassemble segmented packets before decoding")
	serverCmd.Flags().IntVar(&serverSecondaryBytes, "secondary-header-bytes", 0, "bytes of secondary header to strip from continuation/last segments when --reassemble is set")
}

func runServer(xtcePath, binaryPath string) error {
	xf, err := os.Open(xtcePath)
	if err != nil {
		return usageError(err)
	}
	defer xf.Close()
	def, err := xtce.Load(xf)
	if err != nil {
		return malformedXTCEError(fmt.Errorf("loading %s: %w", xtcePath, err))
	}

	bf, err := os.Open(binaryPath)
	if err != nil {
		return usageError(err)
	}

	records := make(chan *decode.Record, 64)
	srv := &server.Server{Port: serverPort, Definition: def, Records: records}

	sink := func(w decode.Warning) {
		if Verbose {
			fmt.Fprintf(os.Stderr, "warning: apid=%d %s: %s\n", w.APID, w.Kind, w.Message)
		}
	}
	decoder := decode.NewDecoder(def, sink)
	var reassembler *reassemble.Reassembler
	firstHeader := make(map[int][]byte)
	if serverReassemble {
		reassembler = reassemble.New(serverSecondaryBytes, sink)
	}

	go func() {
		defer bf.Close()
		defer close(records)
		ccsds.ScanFrames(bf, nil, sink, func(frame ccsds.Frame) error {
			body := frame.UserData
			apid := frame.Header.APID
			seqCount := frame.Header.SequenceCount
			header := frame.HeaderBytes
			if reassembler != nil {
				flags := reassemble.SeqFlags(frame.Header.SeqFlags)
				if flags == reassemble.First || flags == reassemble.Unsegmented {
					firstHeader[apid] = append([]byte(nil), frame.HeaderBytes...)
				}
				joined, complete, warnings := reassembler.Feed(apid, seqCount, flags, body)
				for _, w := range warnings {
					sink(w)
				}
				if !complete {
					return nil
				}
				body = joined
				header = ccsds.RecomputeLength(firstHeader[apid], len(body))
			}
			full := append(append([]byte(nil), header...), body...)
			rec, err := decoder.Decode(full)
			if err != nil {
				sink(decode.Warning{Kind: decode.UnderRun, APID: apid, Message: err.Error()})
				return nil
			}
			records <- rec
			return nil
		})
	}()

	srv.Serve()
	return nil
}
