// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kilncli prints the physical devices Vulkan reports as JSON.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/devblok/kiln/core"
	log "github.com/sirupsen/logrus"
)

var (
	envFile    = flag.String("env", ".env", "Configuration file")
	validation = flag.Bool("validation", false, "Enable validation layers")
	compact    = flag.Bool("compact", false, "Print compact JSON")
)

func main() {
	flag.Parse()

	cfg, err := core.LoadConfiguration(*envFile)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Log.Apply(log.StandardLogger())
	if *validation {
		cfg.Instance.Validation = true
	}

	instance, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, nil, cfg.Instance, log.WithField("cmd", "kilncli"))
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Destroy()

	var out []byte
	if *compact {
		out, err = json.Marshal(instance.PhysicalDevicesInfo())
	} else {
		out, err = json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	}
	if err != nil {
		log.Fatal(err)
	}
	os.Stdout.Write(append(out, '\n'))
}
