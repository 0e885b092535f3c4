// Command kb_controldata reads and prints a data directory's control file
// (§6): control/catalog version, the last checkpoint's LSN, and the
// checkpoint record itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kuibadb/kuiba/access/ckpt"
)

func main() {
	flag.Parse()
	dataDir := flag.Arg(0)
	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: kb_controldata <data-dir>")
		os.Exit(1)
	}

	cf, err := ckpt.Read(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kb_controldata: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Control version number:            %d\n", cf.CtlVer)
	fmt.Printf("Catalog version number:             %d\n", cf.CatVer)
	fmt.Printf("Control file time:                  %d\n", cf.TimeNanos)
	fmt.Printf("Latest checkpoint location:          %d\n", cf.CkptLsn)
	fmt.Printf("Latest checkpoint's REDO location:   %d\n", cf.CkptCpy.Redo)
	fmt.Printf("Latest checkpoint's TimeLineID:       %d\n", cf.CkptCpy.Curtli)
	fmt.Printf("Latest checkpoint's PrevTimeLineID:   %d\n", cf.CkptCpy.Prevtli)
	fmt.Printf("Latest checkpoint's NextXID:          %d\n", cf.CkptCpy.NextXid)
	fmt.Printf("Latest checkpoint's NextOID:          %d\n", cf.CkptCpy.NextOid)
	fmt.Printf("Latest checkpoint's time:             %d\n", cf.CkptCpy.TimeNanos)
}
