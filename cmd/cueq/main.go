// Package main provides the cuEquivariance descriptor CLI.
package main

import (
	"fmt"
	"os"

	"github.com/LiamZhang100/cuEquivariance/stp"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("cuEquivariance %s\n", version)
			return
		case "subscripts":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: cueq subscripts <expr>")
				os.Exit(2)
			}
			sub, err := stp.ParseSubscripts(os.Args[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "cueq: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s: %d operands, coefficient modes %q\n",
				sub, sub.NumOperands(), sub.Coefficients())
			return
		}
	}

	fmt.Println("cuEquivariance - Segmented Tensor Product Descriptors for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version             Show version")
	fmt.Println("  subscripts <expr>   Parse and describe a subscripts string")
}
