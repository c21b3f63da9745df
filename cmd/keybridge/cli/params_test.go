// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type commonParams struct {
	Config string `flag:"config" desc:"config file"`
}

type allTypes struct {
	commonParams
	JSONOutput

	Text     string        `flag:"text,t" desc:"text" default:"hello"`
	Enabled  bool          `flag:"enabled" default:"true"`
	Count    int           `flag:"count" default:"3"`
	Rate     float64       `flag:"rate" default:"1.5"`
	Wait     time.Duration `flag:"wait" default:"2s"`
	Origins  []string      `flag:"origin" default:"a,b"`
	Untagged string
}

func TestBindFlagsDefaults(t *testing.T) {
	var params allTypes
	flagSet := FlagsFromParams("test", &params)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Text != "hello" || !params.Enabled || params.Count != 3 || params.Rate != 1.5 || params.Wait != 2*time.Second {
		t.Errorf("defaults = %+v", params)
	}
	if strings.Join(params.Origins, ",") != "a,b" {
		t.Errorf("Origins = %v, want [a b]", params.Origins)
	}
	if flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlagsParse(t *testing.T) {
	var params allTypes
	flagSet := FlagsFromParams("test", &params)
	err := flagSet.Parse([]string{
		"-t", "bye", "--enabled=false", "--count", "7", "--wait", "1m",
		"--origin", "x", "--origin", "y", "--config", "/etc/keybridge.yaml", "--json",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Text != "bye" || params.Enabled || params.Count != 7 || params.Wait != time.Minute {
		t.Errorf("parsed = %+v", params)
	}
	if strings.Join(params.Origins, ",") != "x,y" {
		t.Errorf("Origins = %v, want [x y]", params.Origins)
	}
	if params.Config != "/etc/keybridge.yaml" || !params.OutputJSON {
		t.Errorf("embedded fields not bound: %+v", params)
	}
}

func TestBindFlagsRejects(t *testing.T) {
	type badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	type unsupported struct {
		Data map[string]string `flag:"data"`
	}

	tests := []struct {
		name   string
		params any
	}{
		{"not a pointer", allTypes{}},
		{"pointer to non-struct", new(int)},
		{"bad default", &badDefault{}},
		{"unsupported type", &unsupported{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := BindFlags(test.params, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
				t.Error("BindFlags succeeded")
			}
		})
	}
}

func TestFlagsFromParamsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FlagsFromParams did not panic on a non-pointer")
		}
	}()
	FlagsFromParams("test", allTypes{})
}
