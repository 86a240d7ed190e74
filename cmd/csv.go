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
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spacepacket/spp/ccsds"
	"github.com/spacepacket/spp/decode"
	"github.com/spacepacket/spp/xtce"
)

var (
	csvOutDir string
)

var csvCmd = &cobra.Command{
	Use:   "csv <xtce> <binary>",
	Short: "Decode a packet stream and write one CSV file per container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCSV(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(csvCmd)
	csvCmd.Flags().StringVarP(&csvOutDir, "outdir", "o", "./csv", "target directory for csv files")
}

func runCSV(xtcePath, binaryPath string) error {
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

	if err := os.MkdirAll(csvOutDir, 0o770); err != nil {
		return fmt.Errorf("creating %s: %w", csvOutDir, err)
	}

	writers := &csvWriterSet{byContainer: make(map[string]*csvWriter), maxOpen: 20}
	defer writers.closeAll()

	sink := func(w decode.Warning) {
		if Verbose {
			fmt.Fprintf(os.Stderr, "warning: apid=%d %s: %s\n", w.APID, w.Kind, w.Message)
		}
	}
	decoder := decode.NewDecoder(def, sink)

	var packetCount int
	err = ccsds.ScanFrames(bf, nil, sink, func(frame ccsds.Frame) error {
		full := append(append([]byte(nil), frame.HeaderBytes...), frame.UserData...)
		rec, err := decoder.Decode(full)
		if err != nil {
			sink(decode.Warning{Kind: decode.UnderRun, APID: frame.Header.APID, Message: err.Error()})
			return nil
		}
		packetCount++
		return writers.write(rec)
	})
	if err != nil {
		return malformedInputError(err)
	}
	fmt.Printf("%d packets processed\n", packetCount)
	return nil
}

// csvWriter buffers one container's decoded rows before flushing them to
// its file. Grounded on the teacher's own csvWriter/writerMap pair, kept
// as its own type since opening a file per container up front (as the
// teacher did per packet-info) still applies here.
type csvWriter struct {
	container string
	filename  string
	buffer    *bytes.Buffer
	file      *os.File
	header    []string
}

func (w *csvWriter) flush() {
	if w.buffer.Len() == 0 {
		return
	}
	if w.file == nil {
		f, err := os.OpenFile(w.filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o660)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening %s: %v\n", w.filename, err)
			return
		}
		w.file = f
	}
	if _, err := w.buffer.WriteTo(w.file); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", w.filename, err)
	}
}

func (w *csvWriter) close() {
	w.flush()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// csvWriterSet closes the file of the earliest-opened writer still on its
// eviction list once maxOpen writers are on it and a new container needs
// one. An evicted writer stays in byContainer, reopens its file in append
// mode on its next flush, and is not put back on the list, so maxOpen is
// not a strict bound on the number of open files.
type csvWriterSet struct {
	byContainer map[string]*csvWriter
	order       []string
	maxOpen     int
}

func (s *csvWriterSet) write(rec *decode.Record) error {
	w, ok := s.byContainer[rec.ContainerName]
	if !ok {
		w = s.open(rec)
	}
	for i, name := range rec.Names() {
		if i > 0 {
			fmt.Fprint(w.buffer, ",")
		}
		raw, derived, hasDerived, _ := rec.Value(name)
		if hasDerived {
			fmt.Fprint(w.buffer, derived.String())
		} else {
			fmt.Fprint(w.buffer, raw.String())
		}
	}
	fmt.Fprint(w.buffer, "\n")
	if w.buffer.Len() > 32768 {
		w.flush()
	}
	return nil
}

func (s *csvWriterSet) open(rec *decode.Record) *csvWriter {
	if len(s.order) >= s.maxOpen {
		oldest := s.byContainer[s.order[0]]
		s.order = s.order[1:]
		if oldest != nil {
			oldest.close()
		}
	}
	filename := filepath.Join(csvOutDir, rec.ContainerName+".csv")
	w := &csvWriter{
		container: rec.ContainerName,
		filename:  filename,
		buffer:    bytes.NewBuffer(make([]byte, 0, 4096)),
		header:    rec.Names(),
	}
	if f, err := os.Create(filename); err == nil {
		f.Close()
	}
	for i, name := range w.header {
		if i > 0 {
			fmt.Fprint(w.buffer, ",")
		}
		fmt.Fprint(w.buffer, name)
	}
	fmt.Fprint(w.buffer, "\n")
	s.byContainer[rec.ContainerName] = w
	s.order = append(s.order, rec.ContainerName)
	return w
}

func (s *csvWriterSet) closeAll() {
	for _, w := range s.byContainer {
		w.close()
	}
}
