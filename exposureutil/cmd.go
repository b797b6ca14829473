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

// Package exposureutil holds the exposuremap command-line interface.
package exposureutil

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spatialmodel/exposuremap"
	"github.com/spatialmodel/exposuremap/overlayserve"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to exposuremap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "addr",
			usage: `
              addr specifies the address the server listens on.`,
			defaultVal: ":8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "data_dir",
			usage: `
              data_dir specifies the directory holding the asset index
              (assets.json) and the per-asset grid files.`,
			shorthand:  "d",
			defaultVal: "data",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "data_url",
			usage: `
              data_url specifies the URL prefix of a remote data source to
              fetch the asset index and grid files from. If set, it takes
              the place of data_dir.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "static_dir",
			usage: `
              static_dir specifies a directory of frontend files to serve
              for non-API paths. If empty, no static files are served.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "search_radius_km",
			usage: `
              search_radius_km specifies the radius in kilometers within
              which assets are considered for point analysis.`,
			defaultVal: exposuremap.SearchRadiusKm,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "cache_entries",
			usage: `
              cache_entries specifies how many decoded asset grids to hold
              in memory.`,
			defaultVal: 512,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "surface_cache_entries",
			usage: `
              surface_cache_entries specifies how many rendered overlay
              images to hold in memory.`,
			defaultVal: 64,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "heatmap",
			usage: `
              heatmap renders overlays as exposure heat rasters instead of
              graduated circles.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("EXPOSUREMAP")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(serveCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("exposuremap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "exposuremap",
	Short: "A map server for asset-level PM2.5 exposure grids.",
	Long: `exposuremap serves per-asset grids of PM2.5 concentration and
population as positioned map overlays and answers point-contribution
queries. Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'EXPOSUREMAP_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of exposuremap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("exposuremap v%s\n", exposuremap.Version)
	},
	DisableAutoGenTag: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the overlay engine over HTTP.",
	Long: `serve loads the asset index from --data_dir (or --data_url, for a
remote data source) and starts the web server, exposing the asset catalog,
rendered overlay surfaces, point analysis, and the map legend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		radius, err := cast.ToFloat64E(Cfg.Get("search_radius_km"))
		if err != nil {
			return fmt.Errorf("exposuremap: parsing search_radius_km: %v", err)
		}
		c := &overlayserve.Config{
			DataDir:             Cfg.GetString("data_dir"),
			DataURL:             Cfg.GetString("data_url"),
			StaticDir:           Cfg.GetString("static_dir"),
			SearchRadiusKm:      radius,
			GridCacheEntries:    Cfg.GetInt("cache_entries"),
			SurfaceCacheEntries: Cfg.GetInt("surface_cache_entries"),
			Heatmap:             Cfg.GetBool("heatmap"),
		}
		s, err := overlayserve.NewServer(c)
		if err != nil {
			return err
		}
		logger := logrus.StandardLogger()
		s.Log = logger

		srv := &http.Server{
			Addr:              Cfg.GetString("addr"),
			Handler:           s,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		logger.Infof("listening on http://%s\n", srv.Addr)
		return srv.ListenAndServe()
	},
	DisableAutoGenTag: true,
}
