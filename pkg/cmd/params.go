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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tessella/tessella/pkg/compiler"
)

// paramsCmd reports the effective form-compiler parameters, optionally merged
// with overrides loaded from a YAML file.
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the effective form compiler parameters.",
	Run: func(cmd *cobra.Command, args []string) {
		initialiseLogging(cmd)
		//
		params := compiler.DefaultParameters()
		//
		if filename := GetString(cmd, "parameters"); filename != "" {
			overrides, err := compiler.LoadParameters(filename)
			if err != nil {
				log.Fatal(err)
			}
			//
			for k, v := range overrides {
				params[k] = v
			}
		}
		//
		for _, item := range compiler.SortedItems(params) {
			fmt.Println(item)
		}
	},
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.Flags().StringP("parameters", "p", "", "YAML file of parameter overrides")
}
