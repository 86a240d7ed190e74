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
	"sort"

	"github.com/spf13/cobra"

	"github.com/spacepacket/spp/xtce"
)

var describeCmd = &cobra.Command{
	Use:   "describe <xtce>",
	Short: "Print a summary of an XTCE telemetry dictionary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDescribe(args[0])
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return usageError(err)
	}
	defer f.Close()

	def, err := xtce.Load(f)
	if err != nil {
		return malformedXTCEError(fmt.Errorf("loading %s: %w", path, err))
	}

	fmt.Printf("SpaceSystem %s\n", def.Name)
	fmt.Printf("  root container: %s\n", def.RootContainer)

	kinds := make(map[string]int)
	for _, t := range def.ParameterTypes {
		kinds[typeKindName(t)]++
	}
	fmt.Printf("  parameter types: %d\n", len(def.ParameterTypes))
	for _, name := range sortedStringKeys(kinds) {
		fmt.Printf("    %-12s %d\n", name, kinds[name])
	}

	fmt.Printf("  parameters: %d\n", len(def.Parameters))
	fmt.Printf("  containers: %d\n", len(def.Containers))
	if def.RootContainer != "" {
		printContainerTree(def, def.RootContainer, 2)
	}
	return nil
}

func printContainerTree(def *xtce.Definition, name string, indent int) {
	c := def.Containers[name]
	marker := ""
	if c != nil && c.Abstract {
		marker = " (abstract)"
	}
	fmt.Printf("%*s- %s%s\n", indent, "", name, marker)
	for _, child := range def.Inheritors(name) {
		printContainerTree(def, child, indent+2)
	}
}

func typeKindName(t xtce.ParameterType) string {
	switch t.(type) {
	case *xtce.IntegerParameterType:
		return "integer"
	case *xtce.FloatParameterType:
		return "float"
	case *xtce.StringParameterType:
		return "string"
	case *xtce.BinaryParameterType:
		return "binary"
	case *xtce.BooleanParameterType:
		return "boolean"
	case *xtce.EnumeratedParameterType:
		return "enumerated"
	case *xtce.AbsoluteTimeParameterType:
		return "absoluteTime"
	case *xtce.RelativeTimeParameterType:
		return "relativeTime"
	default:
		return "unknown"
	}
}

func sortedStringKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
