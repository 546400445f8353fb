package main

import (
	"os"
	"path/filepath"

	"github.com/nuagenetworks/tripleo-config/pkg/cmd"
	"github.com/nuagenetworks/tripleo-config/pkg/cmd/puppet"
)

func main() {
	baseName := filepath.Base(os.Args[0])

	err := puppet.NewCommand(baseName).Execute()
	cmd.CheckError(err)
}
