// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/datafy/datafy/cmd/datafy"

func main() {
	cmd.Execute()
}
