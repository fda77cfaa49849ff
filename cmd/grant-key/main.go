// Package main provides a one-shot utility for admin grant key generation.
//
// It emits the asymmetric keypair used to sign and verify operator grants.
package main

import (
	"os"

	"github.com/louisbranch/sortition/internal/platform/config"
	"github.com/louisbranch/sortition/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate admin grant key: %v", err)
	}
}
