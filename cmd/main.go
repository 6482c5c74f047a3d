package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"marginledger/cmd/squareoff"
	"marginledger/src/database"
	"marginledger/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Margin Ledger CMD"
	app.Usage = "The margin ledger command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		squareOffCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the HTTP API",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the fund and order API server`,
	}
	squareOffCMD = cli.Command{
		Name:        "squareoff",
		Usage:       "run the square-off scheduler",
		Action:      squareOffAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the time-driven square-off scheduler`,
	}
)

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")
	logrus.WithField("cmd", "server")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	server.StartServer(server.GetConfig().Port)

	return nil
}

func squareOffAction(_ *cli.Context) error {

	logrus.Info("Starting square-off CMD")
	logrus.WithField("cmd", "squareoff")

	sqo := &squareoff.SquareOff{}
	err := sqo.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
