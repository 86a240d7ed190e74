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
	"encoding/json"
	"errors"
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
	packetsAPIDs          []int
	packetsReassemble     bool
	packetsServe          bool
	packetsServerPort     int
	packetsSecondaryBytes int
)

var packetsCmd = &cobra.Command{
	Use:   "packets <xtce> <binary>",
	Short: "Decode a CCSDS space packet stream and print records as line-delimited JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPackets(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(packetsCmd)
	packetsCmd.Flags().IntSliceVar(&packetsAPIDs, "apid", nil, "restrict decoding to this APID (repeatable); default all APIDs")
	packetsCmd.Flags().BoolVar(&packetsReassemble, "reassemble", false, "reassemble segmented packets before decoding")
	packetsCmd.Flags().BoolVar(&packetsServe, "serve", false, "also push decoded records to a realtime websocket server")
	packetsCmd.Flags().IntVar(&packetsServerPort, "serve-port", 8000, "port for --serve")
	packetsCmd.Flags().IntVar(&packetsSecondaryBytes, "secondary-header-bytes", 0, "bytes of secondary header to strip from continuation/last segments when --reassemble is set")
}

type recordLine struct {
	APID          int      `json:"apid"`
	SequenceCount int      `json:"sequence_count"`
	Container     string   `json:"container"`
	Parameters    []pair   `json:"parameters"`
	Warnings      []string `json:"warnings,omitempty"`
}

type pair struct {
	Name  string `json:"name"`
	Raw   string `json:"raw"`
	Value string `json:"value,omitempty"`
}

func runPackets(xtcePath, binaryPath string) error {
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
	defer bf.Close()

	var apidFilter map[int]bool
	if len(packetsAPIDs) > 0 {
		apidFilter = make(map[int]bool, len(packetsAPIDs))
		for _, a := range packetsAPIDs {
			apidFilter[a] = true
		}
	}

	var records chan *decode.Record
	var srv *server.Server
	if packetsServe {
		records = make(chan *decode.Record, 64)
		srv = &server.Server{Port: packetsServerPort, Definition: def, Records: records}
		go srv.Serve()
	}

	sink := func(w decode.Warning) {
		if Verbose {
			fmt.Fprintf(os.Stderr, "warning: apid=%d %s: %s\n", w.APID, w.Kind, w.Message)
		}
	}

	decoder := decode.NewDecoder(def, sink)
	var reassembler *reassemble.Reassembler
	firstHeader := make(map[int][]byte)
	if packetsReassemble {
		reassembler = reassemble.New(packetsSecondaryBytes, sink)
	}

	encoder := json.NewEncoder(os.Stdout)
	var decodeErr error
	err = ccsds.ScanFrames(bf, apidFilter, sink, func(frame ccsds.Frame) error {
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
			if errors.Is(err, decode.ErrMalformed) {
				sink(decode.Warning{Kind: decode.UnderRun, APID: apid, Message: err.Error()})
				decodeErr = err
				return nil
			}
			return err
		}

		if records != nil {
			records <- rec
		}
		return encoder.Encode(toRecordLine(rec))
	})
	if records != nil {
		close(records)
	}
	if err != nil {
		return malformedInputError(err)
	}
	if decodeErr != nil {
		return malformedInputError(decodeErr)
	}
	return nil
}

func toRecordLine(rec *decode.Record) recordLine {
	names := rec.Names()
	params := make([]pair, 0, len(names))
	for _, name := range names {
		raw, derived, hasDerived, _ := rec.Value(name)
		p := pair{Name: name, Raw: raw.String()}
		if hasDerived {
			p.Value = derived.String()
		}
		params = append(params, p)
	}
	warnings := make([]string, len(rec.Warnings))
	for i, w := range rec.Warnings {
		warnings[i] = fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return recordLine{
		APID:          rec.APID,
		SequenceCount: rec.SequenceCount,
		Container:     rec.ContainerName,
		Parameters:    params,
		Warnings:      warnings,
	}
}
