// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tessella/tessella/pkg/comm"
	"github.com/tessella/tessella/pkg/compiler"
)

// cacheCmd groups the kernel-cache maintenance subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or manage the on-disk kernel cache.",
	Run: func(cmd *cobra.Command, args []string) {
		// Cannot be called without a subcommand.
		if err := cmd.Usage(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

// cacheDirCmd reports the resolved cache root, honouring the environment
// override.
var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the kernel cache directory.",
	Run: func(cmd *cobra.Command, args []string) {
		initialiseLogging(cmd)
		fmt.Println(compiler.DefaultCacheDir())
	},
}

// cacheClearCmd wipes the on-disk kernel cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries from the kernel cache.",
	Run: func(cmd *cobra.Command, args []string) {
		initialiseLogging(cmd)
		//
		if err := compiler.ClearCache(comm.World); err != nil {
			log.Fatal(err)
		}
		//
		log.Debugf("cleared kernel cache at %s", compiler.DefaultCacheDir())
	},
}

//nolint:errcheck
func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheDirCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
