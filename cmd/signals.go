////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// signals.go handles the node process's own lifecycle signals: SIGINT/
// SIGTERM to stop serving, nothing else — a node doesn't have cMix's
// separate round-creation phase to pause independently of exit.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	jww "github.com/spf13/jwalterweatherman"
)

// ReceiveSignal calls fn every time sig is received, forever.
func ReceiveSignal(fn func(), sig os.Signal) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, sig)

	go func() {
		for {
			<-c
			jww.INFO.Printf("cmd: received %s signal", sig)
			fn()
		}
	}()
}

// ReceiveExitSignal returns a channel fired once on SIGINT or SIGTERM.
func ReceiveExitSignal() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	return c
}
