// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/antgroup/tabula/pkg/version"
	"github.com/sirupsen/logrus"
)

type App struct {
	Globals
	HTTPD  HTTPD  `cmd:"httpd" help:"start tabula-serve httpd server"`
	Worker Worker `cmd:"worker" help:"start tabula-serve import worker"`
}

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("tabula-serve"),
		kong.Description("Tabula - A versioned data platform for tabular datasets"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.GetVersionString(),
		},
	)
	if app.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
		if u, err := version.Uname(); err == nil {
			logrus.Debugf("host: %s %s %s (%s)", u.Name, u.Release, u.Machine, u.Processor)
		}
	}
	if err := ctx.Run(&app.Globals); err != nil {
		os.Exit(1)
	}
}
