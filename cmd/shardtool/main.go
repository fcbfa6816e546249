// Command shardtool packs, inspects and streams BERT pretraining shards.
package main

import (
	"log"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := newRootCommand().Execute(); err != nil {
		log.Printf("shardtool: %v", err)
		os.Exit(1)
	}
}
