////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SEMVER is the node binary's release version, set by the release
// pipeline at build time via -ldflags; it stays "dev" in a source checkout.
var SEMVER = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion() {
	fmt.Printf("nilvm node v%s\n", SEMVER)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the node binary's version",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}
