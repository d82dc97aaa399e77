/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// scxmlrun runs one chart, feeding it events from stdin (one JSON
// object or bare event name per line) and writing emitted events to
// stdout.
//
//	scxmlrun -chart doorbell.scxml
//	echo press | scxmlrun -chart doorbell.scxml -echo
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/sio"

	// Register the datamodels.
	_ "github.com/statechart/scxml/datamodel/goja"
	_ "github.com/statechart/scxml/datamodel/null"
)

func main() {
	var (
		chartFile = flag.String("chart", "", "SCXML chart filename")
		dmName    = flag.String("datamodel", "", "datamodel name (default: ecmascript)")
		echo      = flag.Bool("echo", false, "write the stable configuration after each macro-step")
		verbose   = flag.Bool("v", false, "verbosity")
	)

	flag.Parse()

	if *chartFile == "" {
		fmt.Fprintln(os.Stderr, "need a -chart")
		os.Exit(1)
	}

	if err := run(*chartFile, *dmName, *echo, *verbose); err != nil {
		log.Fatal(err)
	}
}

func run(chartFile, dmName string, echo, verbose bool) error {
	doc, err := chart.ParseFile(chartFile)
	if err != nil {
		return err
	}

	var mon core.Monitor
	if echo {
		mon = &configEcho{}
	}

	c, err := sio.NewCoupler(doc, dmName, mon)
	if err != nil {
		return err
	}
	c.Verbose = verbose
	if echo {
		mon.(*configEcho).engine = c.Engine
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdio := sio.NewStdio(c, os.Stdin, os.Stdout)
	stdio.Start(ctx)

	return c.Run(ctx)
}

// configEcho prints the stable configuration.
type configEcho struct {
	core.NopMonitor
	engine *core.Engine
}

func (m *configEcho) OnStableConfiguration() {
	fmt.Printf("config [%s]\n", strings.Join(m.engine.ConfigurationIDs(), " "))
}
