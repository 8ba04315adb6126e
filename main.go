// SPDX-License-Identifier: MPL-2.0

package main

import cmd "wheelwright/cmd/wheelwright"

func main() {
	cmd.Execute()
}
