/*
Copyright © 2026 the CPlan authors.
This file is part of CPlan.

CPlan is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CPlan is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CPlan.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cplanutil holds the command-line interface for CPlan.
package cplanutil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/cplan"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to CPlan.
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
			name: "LogLevel",
			usage: `
              LogLevel specifies the minimum level of log messages to
              print: debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "store",
			usage: `
              store specifies the directory holding the layer groups. Each
              group is a NetCDF file named <group>.nc in this directory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "params",
			usage: `
              params specifies the location of the optimization parameters
              file, in JSON (.json) or TOML (.toml) format.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "boundary",
			usage: `
              boundary specifies a GeoJSON (.json, .geojson) or shapefile (.shp)
              holding the planning area. It is only used if the parameters
              file does not include a geometry.`,
			shorthand:  "b",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "BoundaryCRS",
			usage: `
              BoundaryCRS specifies the coordinate reference system of the
              boundary file, for example EPSG:4326. If it is empty, GeoJSON
              boundaries are assumed to be in the layer CRS and shapefiles
              use their .prj file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output specifies the directory where the solution grid
              (solution.nc) and tile archive (solution.pmtiles) are written.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "notiles",
			usage: `
              notiles specifies that no tile archive should be published
              after optimization.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to the desired logfile location. It
              defaults to the output location with a .log extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), tileCmd.Flags()},
		},
		{
			name: "concurrency",
			usage: `
              concurrency specifies the maximum number of tiles rendered at
              once. Zero means one per CPU.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), tileCmd.Flags()},
		},
		{
			name: "solution",
			usage: `
              solution specifies the solution grid file written by the run
              command.`,
			shorthand:  "s",
			defaultVal: "solution.nc",
			flagsets:   []*pflag.FlagSet{tileCmd.Flags()},
		},
		{
			name: "archive",
			usage: `
              archive specifies the location of the tile archive to write.`,
			shorthand:  "a",
			defaultVal: "solution.pmtiles",
			flagsets:   []*pflag.FlagSet{tileCmd.Flags()},
		},
		{
			name: "minzoom",
			usage: `
              minzoom specifies the lowest zoom level to publish.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{tileCmd.Flags()},
		},
		{
			name: "maxzoom",
			usage: `
              maxzoom specifies the highest zoom level to publish. The default
              of -1 derives it from the grid resolution.`,
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{tileCmd.Flags()},
		},
		{
			name: "tilesize",
			usage: `
              tilesize specifies the tile edge length in pixels.`,
			defaultVal: 512,
			flagsets:   []*pflag.FlagSet{tileCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CPLAN")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
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
	Root.AddCommand(runCmd)
	Root.AddCommand(tileCmd)
	Root.AddCommand(inspectCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("cplan: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "cplan",
	Short: "A conservation planning optimizer.",
	Long: `CPlan selects the grid cells of a planning area that best meet a set of
conservation goals, and publishes the selection as a web map tile archive.
Use the subcommands specified below to access the model functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'CPLAN_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of CPlan.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("CPlan v%s\n", cplan.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization.",
	Long: `run loads the layers named in the parameters file from the store, selects
the cells that best meet the layer rules within the boundary, and writes the
selection grid and, unless --notiles is set, a PMTiles archive of it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, err := checkOutputDir(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		return Run(cmd,
			checkLogFile(os.ExpandEnv(Cfg.GetString("LogFile")), outputDir),
			Cfg.GetString("LogLevel"),
			os.ExpandEnv(Cfg.GetString("store")),
			os.ExpandEnv(Cfg.GetString("params")),
			os.ExpandEnv(Cfg.GetString("boundary")),
			Cfg.GetString("BoundaryCRS"),
			outputDir,
			cast.ToBool(Cfg.Get("notiles")),
			cast.ToInt(Cfg.Get("concurrency")),
		)
	},
	DisableAutoGenTag: true,
}

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Publish a tile archive from a solution grid.",
	Long: `tile renders a solution grid written by the run command into a PMTiles
archive of PNG tiles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := checkOutputFile(Cfg.GetString("archive"))
		if err != nil {
			return err
		}
		maxZoom, err := cast.ToIntE(Cfg.Get("maxzoom"))
		if err != nil {
			return cplan.ConfigErrorf("invalid maxzoom: %v", err)
		}
		return Tile(cmd,
			checkLogFile(os.ExpandEnv(Cfg.GetString("LogFile")), archive),
			Cfg.GetString("LogLevel"),
			os.ExpandEnv(Cfg.GetString("solution")),
			archive,
			cast.ToInt(Cfg.Get("minzoom")),
			maxZoom,
			cast.ToInt(Cfg.Get("tilesize")),
			cast.ToInt(Cfg.Get("concurrency")),
		)
	},
	DisableAutoGenTag: true,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect archive.pmtiles",
	Short: "Print a summary of a tile archive.",
	Long: `inspect prints the header, metadata, tile count and checksum of a
PMTiles archive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Inspect(cmd.OutOrStdout(), os.ExpandEnv(args[0]))
	},
	DisableAutoGenTag: true,
}
