/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// scxmld hosts charts as a service: a bbolt library of chart
// documents, a WebSocket event interface per chart, and an outbound
// HTTP sender for http(s) send targets.
//
//	scxmld -db charts.db -listen :8080 -config charts.yaml
//
// The optional YAML config preloads charts into the library:
//
//	charts:
//	  - id: doorbell
//	    file: doorbell.scxml
//	    datamodel: ecmascript
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"gopkg.in/yaml.v2"

	// Register the datamodels.
	_ "github.com/statechart/scxml/datamodel/goja"
	_ "github.com/statechart/scxml/datamodel/null"
)

// Config is the service configuration file.
type Config struct {
	Charts []struct {
		Id        string `yaml:"id"`
		File      string `yaml:"file"`
		Datamodel string `yaml:"datamodel"`
	} `yaml:"charts"`
}

func main() {
	var (
		dbFile     = flag.String("db", "charts.db", "chart library filename")
		listen     = flag.String("listen", ":8080", "HTTP listen address")
		configFile = flag.String("config", "", "optional YAML config to preload charts")
	)

	flag.Parse()

	if err := run(*dbFile, *listen, *configFile); err != nil {
		log.Fatal(err)
	}
}

func run(dbFile, listen, configFile string) error {
	storage, err := NewStorage(dbFile)
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, err := NewService(ctx, storage)
	if err != nil {
		return err
	}

	if configFile != "" {
		if err := preload(storage, configFile); err != nil {
			return err
		}
	}

	if err := service.StartStored(); err != nil {
		return err
	}

	log.Printf("scxmld listening on %s", listen)
	return http.ListenAndServe(listen, service)
}

func preload(storage *Storage, configFile string) error {
	bs, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}

	var config Config
	if err := yaml.Unmarshal(bs, &config); err != nil {
		return err
	}

	for _, c := range config.Charts {
		src, err := os.ReadFile(c.File)
		if err != nil {
			return err
		}
		rec := &ChartRecord{
			Id:        c.Id,
			Source:    string(src),
			Datamodel: c.Datamodel,
		}
		if err := storage.Save(rec); err != nil {
			return err
		}
	}

	return nil
}
