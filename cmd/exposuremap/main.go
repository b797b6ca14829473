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

// command exposuremap serves asset-level PM2.5 exposure grids as map
// overlays.
package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/exposuremap/exposureutil"
)

func init() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

func main() {
	if err := exposureutil.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
