/*
Copyright © 2023 the exposuremap authors.
This file is part of exposuremap.

exposuremap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

exposuremap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with exposuremap.  If not, see <http://www.gnu.org/licenses/>.*/

package exposureutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	if have := Cfg.GetString("addr"); have != ":8080" {
		t.Errorf("addr = %q; want :8080", have)
	}
	if have := Cfg.GetString("data_dir"); have != "data" {
		t.Errorf("data_dir = %q; want data", have)
	}
	if have := Cfg.GetString("data_url"); have != "" {
		t.Errorf("data_url = %q; want empty (local data source)", have)
	}
	if have := Cfg.GetFloat64("search_radius_km"); have != 100 {
		t.Errorf("search_radius_km = %g; want 100", have)
	}
	if have := Cfg.GetInt("cache_entries"); have != 512 {
		t.Errorf("cache_entries = %d; want 512", have)
	}
	if Cfg.GetBool("heatmap") {
		t.Error("heatmap defaults to true")
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	Root.SetOut(&buf)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "exposuremap v") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestSetConfigMissingFile(t *testing.T) {
	Cfg.Set("config", "/does/not/exist.yaml")
	defer Cfg.Set("config", "")
	if err := setConfig(); err == nil {
		t.Error("missing configuration file accepted")
	}
}
