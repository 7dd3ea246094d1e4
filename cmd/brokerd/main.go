/*
 * Copyright 2025 Averho and its licensors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultListenAddr is where brokerd listens when no --listen parameter is
// provided.
const defaultListenAddr = "127.0.0.1:8778"

func main() {
	rootCmd := &cobra.Command{
		Use:   "brokerd",
		Short: "Averho SSO broker",
	}
	rootCmd.AddCommand(commandServe())
	rootCmd.AddCommand(commandHealthcheck())
	rootCmd.AddCommand(commandVersion())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
