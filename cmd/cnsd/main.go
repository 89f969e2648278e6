package main

import (
	"github.com/NVIDIA/cloud-native-stack/pkg/cli"
)

func main() {
	cli.Execute()
}
